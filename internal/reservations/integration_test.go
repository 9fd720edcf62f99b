package reservations

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostwell/pms-reservations/internal/postgres"
)

// Integration tests against a real Postgres: set TEST_POSTGRES_DSN to run.
// They exercise the properties only the database can enforce, racing
// allocations against the exclusion constraint and commands against the
// version guard.

func requirePool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	require.NoError(t, postgres.Migrate(dsn))
	pool, err := postgres.Connect(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

type fixture struct {
	tenantID   string
	propertyID string
	roomTypeID string
	ratePlanID string
	roomA      string
	roomB      string
}

func seed(t *testing.T, pool *pgxpool.Pool) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{
		tenantID:   uuid.NewString(),
		propertyID: uuid.NewString(),
		roomTypeID: uuid.NewString(),
		ratePlanID: uuid.NewString(),
		roomA:      uuid.NewString(),
		roomB:      uuid.NewString(),
	}

	_, err := pool.Exec(ctx, `INSERT INTO tenants (id, name) VALUES ($1, $2)`, f.tenantID, "test-tenant")
	require.NoError(t, err)

	tx, err := postgres.TenantTx(ctx, pool, f.tenantID)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `INSERT INTO properties (id, tenant_id, name) VALUES ($1, $2, $3)`,
		f.propertyID, f.tenantID, "test-property")
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `INSERT INTO room_types (id, tenant_id, property_id, name) VALUES ($1, $2, $3, $4)`,
		f.roomTypeID, f.tenantID, f.propertyID, "double")
	require.NoError(t, err)
	_, err = tx.Exec(ctx, `INSERT INTO rate_plans (id, tenant_id, property_id, name) VALUES ($1, $2, $3, $4)`,
		f.ratePlanID, f.tenantID, f.propertyID, "flex")
	require.NoError(t, err)
	for i, room := range []string{f.roomA, f.roomB} {
		_, err = tx.Exec(ctx, `
			INSERT INTO rooms (id, tenant_id, property_id, room_type_id, room_number)
			VALUES ($1, $2, $3, $4, $5)`,
			room, f.tenantID, f.propertyID, f.roomTypeID, uuid.NewString()[:8]+string(rune('A'+i)))
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit(ctx))
	return f
}

func (f fixture) createInput(roomID *string) CreateInput {
	return CreateInput{
		TenantID:   f.tenantID,
		PropertyID: f.propertyID,
		Actor:      "tester",
		Guest:      GuestSnapshot{FirstName: "Ada", LastName: "Lovelace"},
		RoomTypeID: f.roomTypeID,
		RoomID:     roomID,
		RatePlanID: f.ratePlanID,
		CheckIn:    day("2030-01-10"),
		CheckOut:   day("2030-01-12"),
		Source:     "direct",
		RateCents:  12000,
	}
}

func TestCreateRaceSingleWinner(t *testing.T) {
	pool := requirePool(t)
	f := seed(t, pool)
	cmds := &Commands{DB: pool, Service: "test"}

	const racers = 8
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cmds.Create(context.Background(), f.createInput(&f.roomA))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrRoomAlreadyBooked):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(racers-1), conflicts.Load())
}

func TestMoveRoomRaceVersionGuard(t *testing.T) {
	pool := requirePool(t)
	f := seed(t, pool)
	cmds := &Commands{DB: pool, Service: "test"}

	res, err := cmds.Create(context.Background(), f.createInput(nil))
	require.NoError(t, err)

	// two concurrent assignments with the same observed version: the row
	// lock serializes them, the version guard picks exactly one winner
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for _, room := range []string{f.roomA, f.roomB} {
		wg.Add(1)
		go func(roomID string) {
			defer wg.Done()
			_, err := cmds.MoveRoom(context.Background(), MoveInput{
				TenantID:      f.tenantID,
				ReservationID: res.ID,
				Actor:         "tester",
				Version:       res.Version,
				NewRoomID:     roomID,
			})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrConcurrencyConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(room)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(1), conflicts.Load())
}

func TestResizeStaleVersionRejected(t *testing.T) {
	pool := requirePool(t)
	f := seed(t, pool)
	cmds := &Commands{DB: pool, Service: "test"}

	res, err := cmds.Create(context.Background(), f.createInput(&f.roomA))
	require.NoError(t, err)

	moved, err := cmds.MoveRoom(context.Background(), MoveInput{
		TenantID: f.tenantID, ReservationID: res.ID, Actor: "tester",
		Version: res.Version, NewRoomID: f.roomB,
	})
	require.NoError(t, err)
	require.Equal(t, res.Version+1, moved.Version)

	_, err = cmds.Resize(context.Background(), ResizeInput{
		TenantID: f.tenantID, ReservationID: res.ID, Actor: "tester",
		Version:     res.Version, // stale
		NewCheckIn:  day("2030-01-10"),
		NewCheckOut: day("2030-01-13"),
	})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}
