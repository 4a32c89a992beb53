package consumers_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stockflow/stockflow-backend/internal/inventory/consumers"
	"github.com/stockflow/stockflow-backend/internal/inventory/repository"
	"github.com/stockflow/stockflow-backend/pkg/messaging"
	"github.com/stockflow/stockflow-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvent(t *testing.T, eventType string, data interface{}) *messaging.Event {
	t.Helper()
	event, err := messaging.NewEvent(eventType, "user-service", "", data)
	require.NoError(t, err)
	return event
}

func TestOperatorDirectory_Lifecycle(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	dir := consumers.NewOperatorDirectory(mem.Operators(), testutil.NewTestLogger(t))
	userID := testutil.OperatorID(7)

	err := dir.HandleUserCreated(ctx, newEvent(t, messaging.EventUserCreated, messaging.UserCreatedEvent{
		UserID:    userID,
		Email:     "ana@example.com",
		FirstName: "Ana",
		LastName:  "Lima",
		RoleName:  "storekeeper",
	}))
	require.NoError(t, err)

	op, err := mem.Operators().Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Lima", op.FullName())
	assert.Equal(t, "storekeeper", *op.RoleName)

	err = dir.HandleUserUpdated(ctx, newEvent(t, messaging.EventUserUpdated, messaging.UserUpdatedEvent{
		UserID: userID,
		Fields: map[string]any{
			"last_name": map[string]any{"from": "Lima", "to": "Souza"},
			"role_name": map[string]any{"from": "storekeeper", "to": ""},
		},
	}))
	require.NoError(t, err)

	op, err = mem.Operators().Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", op.FullName())
	assert.Nil(t, op.RoleName)
	assert.Equal(t, "ana@example.com", *op.Email)

	err = dir.HandleUserDeleted(ctx, newEvent(t, messaging.EventUserDeleted, messaging.UserDeletedEvent{UserID: userID}))
	require.NoError(t, err)

	_, err = mem.Operators().Get(ctx, userID)
	assert.Error(t, err)
}

func TestOperatorDirectory_UpdateForUnknownUserIsIgnored(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	dir := consumers.NewOperatorDirectory(mem.Operators(), testutil.NewTestLogger(t))

	err := dir.HandleUserUpdated(ctx, newEvent(t, messaging.EventUserUpdated, messaging.UserUpdatedEvent{
		UserID: "unknown",
		Fields: map[string]any{"first_name": map[string]any{"to": "X"}},
	}))

	require.NoError(t, err)
	_, err = mem.Operators().Get(ctx, "unknown")
	assert.Error(t, err)
}

func TestOperatorDirectory_MalformedPayload(t *testing.T) {
	mem := repository.NewMemoryStore()
	dir := consumers.NewOperatorDirectory(mem.Operators(), testutil.NewTestLogger(t))

	event := &messaging.Event{
		ID:        "evt-1",
		Type:      messaging.EventUserCreated,
		Timestamp: time.Now(),
		Data:      json.RawMessage(`"not an object"`),
	}

	assert.Error(t, dir.HandleUserCreated(context.Background(), event))
}

func TestOperatorDirectory_NamesMovements(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryStore()
	dir := consumers.NewOperatorDirectory(mem.Operators(), testutil.NewTestLogger(t))
	userID := testutil.OperatorID(3)

	p := &repository.Product{Code: "P001", Name: "Gloves", Category: "consumables", Unit: "box", MaxStock: 100, CurrentStock: 10}
	require.NoError(t, mem.Products().Create(ctx, p))
	require.NoError(t, mem.Movements().Append(ctx, &repository.StockMovement{
		ProductID: p.ID, Type: repository.MovementOut, Quantity: 1, BeforeStock: 10, AfterStock: 9, OperatorID: userID,
	}))

	require.NoError(t, dir.HandleUserCreated(ctx, newEvent(t, messaging.EventUserCreated, messaging.UserCreatedEvent{
		UserID: userID, FirstName: "Bo",
	})))

	movements, _, err := mem.Movements().List(ctx, repository.MovementFilter{})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, "Bo", movements[0].OperatorName)
}
