package fleet

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_tracker/internal/apperrors"
	"fleet_tracker/internal/events"
	"fleet_tracker/internal/geo"
	"fleet_tracker/internal/logger"
	"fleet_tracker/internal/models"
	"fleet_tracker/internal/store"
)

var (
	admin    = models.Caller{UserID: 1, Name: "Ops", Role: models.RoleAdmin}
	fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.EventType
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type failingCleaner struct{}

func (failingCleaner) DeleteInvoicesByShipment(context.Context, uint) (int64, error) {
	return 0, errors.New("invoice table locked")
}

type fixture struct {
	ctx    context.Context
	store  *store.MemoryStore
	events *recorder
	mgr    *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	log := logger.Discard()
	st := store.NewMemoryStore()
	rec := &recorder{}
	routes := geo.NewSynthesizer(geo.NewGeocoder(log), rand.NewSource(7))
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return &fixture{
		ctx:    context.Background(),
		store:  st,
		events: rec,
		mgr:    NewManager(st, routes, rec, log, opts...),
	}
}

func (f *fixture) vehicle(t *testing.T, number string, capacity float64) *models.Vehicle {
	t.Helper()
	v, err := f.mgr.CreateVehicle(f.ctx, VehicleInput{
		VehicleNumber: number,
		DriverName:    "Driver " + number,
		Capacity:      capacity,
	})
	require.NoError(t, err)
	return v
}

func (f *fixture) shipment(t *testing.T, in ShipmentInput) *models.Shipment {
	t.Helper()
	if in.CustomerName == "" {
		in.CustomerName = "Acme Traders"
	}
	if in.Source == "" {
		in.Source = "Mumbai"
	}
	if in.Destination == "" {
		in.Destination = "Delhi"
	}
	sh, err := f.mgr.CreateShipment(f.ctx, admin, in)
	require.NoError(t, err)
	return sh
}

func (f *fixture) reload(t *testing.T, sh *models.Shipment, v *models.Vehicle) (*models.Shipment, *models.Vehicle) {
	t.Helper()
	var err error
	if sh != nil {
		sh, err = f.store.GetShipment(f.ctx, sh.ID)
		require.NoError(t, err)
	}
	if v != nil {
		v, err = f.store.GetVehicle(f.ctx, v.ID)
		require.NoError(t, err)
	}
	return sh, v
}

func TestAssignBindsBothSides(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle(t, "mh12ab1234", 2000)
	sh := f.shipment(t, ShipmentInput{Weight: 500})

	res, err := f.mgr.Assign(f.ctx, v.ID, sh.ID)
	require.NoError(t, err)
	assert.Nil(t, res.Released)

	sh, v = f.reload(t, sh, v)
	assert.Equal(t, "MH12AB1234", v.VehicleNumber)
	assert.Equal(t, models.VehicleActive, v.Status)
	require.NotNil(t, v.CurrentShipmentID)
	assert.Equal(t, sh.ID, *v.CurrentShipmentID)
	assert.Equal(t, sh.ReferenceID, v.CurrentShipmentRef)

	require.NotNil(t, sh.AssignedVehicleID)
	assert.Equal(t, v.ID, *sh.AssignedVehicleID)
	assert.Equal(t, "MH12AB1234", sh.AssignedVehicleNumber)
	assert.Equal(t, "Driver mh12ab1234", sh.AssignedDriverName)
	assert.Equal(t, models.ShipmentPending, sh.Status)
	assert.True(t, sh.Timeline.Done(models.CheckpointVehicleAssigned))
	assert.False(t, sh.Timeline.Done(models.CheckpointInTransit))
}

func TestAssignRejectsBusyVehicle(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle(t, "KA01AA0001", 2000)
	first := f.shipment(t, ShipmentInput{})
	second := f.shipment(t, ShipmentInput{})

	_, err := f.mgr.Assign(f.ctx, v.ID, first.ID)
	require.NoError(t, err)

	_, err = f.mgr.Assign(f.ctx, v.ID, second.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	second, v = f.reload(t, second, v)
	assert.Nil(t, second.AssignedVehicleID)
	assert.Equal(t, first.ID, *v.CurrentShipmentID)
}

func TestAssignRejectsUnavailableVehicleAndClosedShipment(t *testing.T) {
	f := newFixture(t)
	broken := f.vehicle(t, "KA01AA0002", 2000)
	_, err := f.mgr.UpdateVehicle(f.ctx, broken.ID, VehiclePatch{Status: statusPtr(models.VehicleMaintenance)})
	require.NoError(t, err)

	sh := f.shipment(t, ShipmentInput{})
	_, err = f.mgr.Assign(f.ctx, broken.ID, sh.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	ok := f.vehicle(t, "KA01AA0003", 2000)
	_, err = f.mgr.UpdateStatus(f.ctx, sh.ID, models.ShipmentCancelled, false)
	require.NoError(t, err)
	_, err = f.mgr.Assign(f.ctx, ok.ID, sh.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestAssignUnknownRecords(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle(t, "KA01AA0004", 2000)
	sh := f.shipment(t, ShipmentInput{})

	_, err := f.mgr.Assign(f.ctx, 99, sh.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = f.mgr.Assign(f.ctx, v.ID, 99)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestReassignReleasesPreviousVehicle(t *testing.T) {
	f := newFixture(t)
	v1 := f.vehicle(t, "DL01AA0001", 2000)
	v2 := f.vehicle(t, "DL01AA0002", 2000)
	sh := f.shipment(t, ShipmentInput{})

	_, err := f.mgr.Assign(f.ctx, v1.ID, sh.ID)
	require.NoError(t, err)
	res, err := f.mgr.Assign(f.ctx, v2.ID, sh.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Released)
	assert.Equal(t, v1.ID, res.Released.ID)

	_, v1 = f.reload(t, nil, v1)
	sh, v2 = f.reload(t, sh, v2)
	assert.Equal(t, models.VehicleIdle, v1.Status)
	assert.Nil(t, v1.CurrentShipmentID)
	assert.Equal(t, models.VehicleActive, v2.Status)
	assert.Equal(t, v2.ID, *sh.AssignedVehicleID)
	assert.Equal(t, "DL01AA0002", sh.AssignedVehicleNumber)
}

func TestUnassignIsIdempotent(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle(t, "GJ01AA0001", 2000)
	sh := f.shipment(t, ShipmentInput{})
	_, err := f.mgr.Assign(f.ctx, v.ID, sh.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		got, err := f.mgr.Unassign(f.ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, models.VehicleIdle, got.Status)
		assert.Nil(t, got.CurrentShipmentID)
	}

	sh, _ = f.reload(t, sh, nil)
	assert.Nil(t, sh.AssignedVehicleID)
	assert.Empty(t, sh.AssignedVehicleNumber)

	_, err = f.mgr.Unassign(f.ctx, 404)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConcurrentAssignOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle(t, "TN01AA0001", 2000)

	var shipments []*models.Shipment
	for i := 0; i < 8; i++ {
		shipments = append(shipments, f.shipment(t, ShipmentInput{}))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		conflict int
	)
	for _, sh := range shipments {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := f.mgr.Assign(f.ctx, v.ID, id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, apperrors.ErrConflict) {
				conflict++
			}
		}(sh.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, len(shipments)-1, conflict)

	bound, err := f.store.ListShipments(f.ctx, store.ShipmentFilter{VehicleID: &v.ID})
	require.NoError(t, err)
	assert.Len(t, bound, 1)
}

func TestAutoAssignPicksSmallestFittingVehicle(t *testing.T) {
	f := newFixture(t)
	// smallest fit for 800kg, but already carrying a shipment
	busy := f.vehicle(t, "AA00", 1000)
	_, err := f.mgr.Assign(f.ctx, busy.ID, f.shipment(t, ShipmentInput{}).ID)
	require.NoError(t, err)

	f.vehicle(t, "AA01", 5000)
	want := f.vehicle(t, "AA02", 1500)
	f.vehicle(t, "AA03", 1500)
	f.vehicle(t, "AA04", 700)

	got, err := f.mgr.AutoAssign(f.ctx, 800)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotEqual(t, busy.ID, got.ID)
	assert.Equal(t, want.ID, got.ID)

	got, err = f.mgr.AutoAssign(f.ctx, 1000)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)

	got, err = f.mgr.AutoAssign(f.ctx, 6000)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateShipmentAutoAssign(t *testing.T) {
	f := newFixture(t)
	small := f.vehicle(t, "BB01", 500)
	f.vehicle(t, "BB02", 3000)

	sh := f.shipment(t, ShipmentInput{Weight: 400, AutoAssign: true})
	require.NotNil(t, sh.AssignedVehicleID)
	assert.Equal(t, small.ID, *sh.AssignedVehicleID)

	// nothing left that carries 4t: created unassigned, no error
	heavy := f.shipment(t, ShipmentInput{Weight: 4000, AutoAssign: true})
	assert.Nil(t, heavy.AssignedVehicleID)
	assert.Equal(t, models.ShipmentPending, heavy.Status)
}

func TestCreateShipmentWithVehicleNumber(t *testing.T) {
	f := newFixture(t)
	v := f.vehicle(t, "CC01", 2000)

	sh := f.shipment(t, ShipmentInput{VehicleNumber: " cc01 "})
	require.NotNil(t, sh.AssignedVehicleID)
	assert.Equal(t, v.ID, *sh.AssignedVehicleID)

	_, err := f.mgr.CreateShipment(f.ctx, admin, ShipmentInput{
		CustomerName: "Acme", Source: "Pune", Destination: "Goa", VehicleNumber: "NOPE",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	all, err := f.store.ListShipments(f.ctx, store.ShipmentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed create must not leave a shipment behind")
}

func TestCreateShipmentValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		in   ShipmentInput
	}{
		{"no customer", ShipmentInput{Source: "Pune", Destination: "Goa"}},
		{"no source", ShipmentInput{CustomerName: "Acme", Destination: "Goa"}},
		{"negative weight", ShipmentInput{CustomerName: "Acme", Source: "Pune", Destination: "Goa", Weight: -1}},
		{"bad priority", ShipmentInput{CustomerName: "Acme", Source: "Pune", Destination: "Goa", Priority: "URGENT"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.mgr.CreateShipment(f.ctx, admin, tt.in)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestCreateShipmentSynthesizesRoute(t *testing.T) {
	f := newFixture(t)
	sh := f.shipment(t, ShipmentInput{Source: "Mumbai", Destination: "Delhi"})

	assert.Equal(t, "SHP001", sh.ReferenceID)
	assert.Equal(t, models.PriorityNormal, sh.Priority)
	assert.Len(t, sh.Route, 15)
	assert.Equal(t, 15, sh.RouteMetadata.EstimatedWaypoints)
	assert.InDelta(t, 1150, sh.RouteMetadata.DistanceKm, 50)
	assert.True(t, sh.Timeline.Done(models.CheckpointCreated))

	decoded, err := geo.DecodeWKB(sh.RouteGeometry)
	require.NoError(t, err)
	assert.Len(t, decoded, 15)

	body, err := f.mgr.RouteGeoJSON(f.ctx, admin, sh.ID)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"LineString"`)
	assert.Contains(t, string(body), `"SHP001"`)
}

func TestCreateShipmentFromApprovedRequest(t *testing.T) {
	f := newFixture(t)
	req := &models.DeliveryRequest{
		CustomerID: 9, CustomerName: "Priya", Source: "Pune", Destination: "Nagpur",
		Weight: 120, Priority: models.PriorityHigh, Status: models.RequestPending,
	}
	require.NoError(t, f.store.CreateRequest(f.ctx, req))

	_, err := f.mgr.CreateShipment(f.ctx, admin, ShipmentInput{RequestID: &req.ID})
	assert.ErrorIs(t, err, apperrors.ErrConflict, "pending requests cannot be fulfilled")

	req.Status = models.RequestApproved
	require.NoError(t, f.store.SaveRequest(f.ctx, req))

	sh, err := f.mgr.CreateShipment(f.ctx, admin, ShipmentInput{RequestID: &req.ID})
	require.NoError(t, err)
	assert.Equal(t, "Priya", sh.CustomerName)
	require.NotNil(t, sh.CustomerID)
	assert.Equal(t, uint(9), *sh.CustomerID)
	assert.Equal(t, models.PriorityHigh, sh.Priority)

	got, err := f.store.GetRequest(f.ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ShipmentID)
	assert.Equal(t, sh.ID, *got.ShipmentID)

	_, err = f.mgr.CreateShipment(f.ctx, admin, ShipmentInput{RequestID: &req.ID})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.ShipmentStatus
		want     bool
	}{
		{models.ShipmentPending, models.ShipmentInTransit, true},
		{models.ShipmentPending, models.ShipmentActive, true},
		{models.ShipmentPending, models.ShipmentDelivered, false},
		{models.ShipmentActive, models.ShipmentPending, false},
		{models.ShipmentInTransit, models.ShipmentAwaitingCustomerSignature, true},
		{models.ShipmentInTransit, models.ShipmentDelivered, true},
		{models.ShipmentAwaitingCustomerSignature, models.ShipmentDelivered, true},
		{models.ShipmentDelivered, models.ShipmentPending, false},
		{models.ShipmentCancelled, models.ShipmentInTransit, false},
		{models.ShipmentDelivered, models.ShipmentDelivered, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestUpdateStatusDeliveredKeepsVehicleBinding(t *testing.T) {
	f := newFixture(t)
	driverID := uint(42)
	v, err := f.mgr.CreateVehicle(f.ctx, VehicleInput{VehicleNumber: "MH01AA0001", DriverName: "Ravi", DriverID: &driverID, Capacity: 2000})
	require.NoError(t, err)
	sh := f.shipment(t, ShipmentInput{})
	_, err = f.mgr.Assign(f.ctx, v.ID, sh.ID)
	require.NoError(t, err)

	_, err = f.mgr.UpdateStatus(f.ctx, sh.ID, models.ShipmentInTransit, false)
	require.NoError(t, err)
	got, err := f.mgr.UpdateStatus(f.ctx, sh.ID, models.ShipmentDelivered, false)
	require.NoError(t, err)

	for i := range got.Timeline {
		assert.True(t, got.Timeline.Done(i), "checkpoint %d", i)
	}
	require.NotNil(t, got.ActualDeliveryDate)
	assert.Equal(t, fixedNow, *got.ActualDeliveryDate)
	require.NotNil(t, got.AssignedVehicleID)
	assert.Equal(t, v.ID, *got.AssignedVehicleID)
	assert.Equal(t, "MH01AA0001", got.AssignedVehicleNumber)

	sh, v = f.reload(t, sh, v)
	require.NotNil(t, sh.AssignedVehicleID)
	assert.Equal(t, v.ID, *sh.AssignedVehicleID)
	assert.Equal(t, models.VehicleActive, v.Status)
	require.NotNil(t, v.CurrentShipmentID)
	assert.Equal(t, sh.ID, *v.CurrentShipmentID)

	driver := models.Caller{UserID: driverID, Name: "Ravi", Role: models.RoleDriver}
	seen, err := f.mgr.GetShipment(f.ctx, driver, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentDelivered, seen.Status)

	// only an explicit unassign frees the vehicle
	freed, err := f.mgr.Unassign(f.ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VehicleIdle, freed.Status)
	sh, _ = f.reload(t, sh, nil)
	assert.Nil(t, sh.AssignedVehicleID)
	assert.Equal(t, models.ShipmentDelivered, sh.Status)
}

func TestStatusEventsUseInjectedClock(t *testing.T) {
	f := newFixture(t)
	sh := f.shipment(t, ShipmentInput{})

	got, err := f.mgr.UpdateStatus(f.ctx, sh.ID, models.ShipmentInTransit, false)
	require.NoError(t, err)
	got, err = f.mgr.UpdateStatus(f.ctx, got.ID, models.ShipmentDelivered, false)
	require.NoError(t, err)

	assert.Equal(t, []events.EventType{
		events.TypeShipmentStatusUpdated,
		events.TypeShipmentStatusUpdated,
	}, f.events.types())

	inTransit := got.Timeline[models.CheckpointInTransit].Timestamp
	delivered := got.Timeline[models.CheckpointDelivered].Timestamp
	require.NotNil(t, inTransit)
	require.NotNil(t, delivered)

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	assert.Equal(t, *inTransit, f.events.events[0].Timestamp)
	assert.Equal(t, *delivered, f.events.events[1].Timestamp)
	assert.Equal(t, fixedNow, f.events.events[1].Timestamp)
}

func TestUpdateStatusIllegalTransition(t *testing.T) {
	f := newFixture(t)
	sh := f.shipment(t, ShipmentInput{})

	_, err := f.mgr.UpdateStatus(f.ctx, sh.ID, models.ShipmentDelivered, false)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = f.mgr.UpdateStatus(f.ctx, sh.ID, "LOST", false)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	got, err := f.mgr.UpdateStatus(f.ctx, sh.ID, models.ShipmentDelivered, true)
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentDelivered, got.Status)

	_, err = f.mgr.UpdateStatus(f.ctx, sh.ID, models.ShipmentPending, false)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Len(t, f.events.types(), 1)
}

func TestUpdateShipmentRegeneratesRoute(t *testing.T) {
	f := newFixture(t)
	sh := f.shipment(t, ShipmentInput{Source: "Mumbai", Destination: "Thane"})
	assert.Len(t, sh.Route, 8)

	dest := "Kolkata"
	got, err := f.mgr.UpdateShipment(f.ctx, admin, sh.ID, ShipmentPatch{Destination: &dest})
	require.NoError(t, err)
	assert.Equal(t, "Kolkata", got.Destination)
	assert.Len(t, got.Route, 15)
	assert.Equal(t, got.Route[len(got.Route)-1], got.RouteMetadata.DestCoords)

	status := "in_transit"
	got, err = f.mgr.UpdateShipment(f.ctx, admin, sh.ID, ShipmentPatch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentInTransit, got.Status)

	driver := models.Caller{UserID: 5, Name: "Ravi", Role: models.RoleDriver}
	_, err = f.mgr.UpdateShipment(f.ctx, driver, sh.ID, ShipmentPatch{Status: &status, Force: true})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestDeleteShipmentReportsCleanupFailure(t *testing.T) {
	f := newFixture(t, WithInvoiceCleaner(failingCleaner{}))
	v := f.vehicle(t, "UP01AA0001", 2000)
	sh := f.shipment(t, ShipmentInput{VehicleNumber: v.VehicleNumber})

	res, err := f.mgr.DeleteShipment(f.ctx, sh.ID)
	require.NoError(t, err)
	assert.True(t, res.Partial())
	assert.Len(t, res.CleanupErrors, 1)
	require.NotNil(t, res.ReleasedVehicleID)
	assert.Equal(t, v.ID, *res.ReleasedVehicleID)

	_, err = f.store.GetShipment(f.ctx, sh.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, v = f.reload(t, nil, v)
	assert.Equal(t, models.VehicleIdle, v.Status)
	assert.Nil(t, v.CurrentShipmentID)
}

func TestDeleteShipmentRemovesInvoices(t *testing.T) {
	f := newFixture(t)
	sh := f.shipment(t, ShipmentInput{})
	for i := 0; i < 2; i++ {
		require.NoError(t, f.store.CreateInvoice(f.ctx, &models.Invoice{ShipmentID: sh.ID, Amount: 100}))
	}

	res, err := f.mgr.DeleteShipment(f.ctx, sh.ID)
	require.NoError(t, err)
	assert.False(t, res.Partial())
	assert.Equal(t, int64(2), res.InvoicesDeleted)

	_, err = f.mgr.DeleteShipment(f.ctx, sh.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDeliveryProofFlow(t *testing.T) {
	f := newFixture(t)
	driverID := uint(42)
	v, err := f.mgr.CreateVehicle(f.ctx, VehicleInput{VehicleNumber: "RJ01AA0001", DriverName: "Ravi", DriverID: &driverID})
	require.NoError(t, err)

	customerID := uint(9)
	sh := f.shipment(t, ShipmentInput{CustomerID: &customerID, VehicleNumber: v.VehicleNumber})

	driver := models.Caller{UserID: driverID, Name: "Ravi", Role: models.RoleDriver}
	stranger := models.Caller{UserID: 43, Name: "Someone", Role: models.RoleDriver}
	customer := models.Caller{UserID: customerID, Name: "Acme Traders", Role: models.RoleCustomer}

	_, err = f.mgr.StartTrip(f.ctx, stranger, sh.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	got, err := f.mgr.StartTrip(f.ctx, driver, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentInTransit, got.Status)

	_, err = f.mgr.SubmitPOD(f.ctx, driver, sh.ID, "  ", "img")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	got, err = f.mgr.SubmitPOD(f.ctx, driver, sh.ID, "Front desk", "data:image/png;base64,AAAA")
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentAwaitingCustomerSignature, got.Status)
	assert.Equal(t, "Front desk", got.POD.ReceiverName)

	_, err = f.mgr.SubmitEPOD(f.ctx, stranger, sh.ID, "", "sig", "10.0.0.1")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	got, err = f.mgr.SubmitEPOD(f.ctx, customer, sh.ID, "", "sig", "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, models.ShipmentDelivered, got.Status)
	assert.Equal(t, "Acme Traders", got.EPOD.SignedBy)
	assert.Equal(t, "10.0.0.1", got.EPOD.IPAddress)

	_, err = f.mgr.SubmitEPOD(f.ctx, customer, sh.ID, "", "sig", "10.0.0.1")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestShipmentVisibility(t *testing.T) {
	f := newFixture(t)
	nine, ten := uint(9), uint(10)
	mine := f.shipment(t, ShipmentInput{CustomerID: &nine})
	byName := f.shipment(t, ShipmentInput{CustomerName: "Priya"})
	other := f.shipment(t, ShipmentInput{CustomerID: &ten, CustomerName: "Priya"})

	customer := models.Caller{UserID: 9, Name: "Priya", Role: models.RoleCustomer}
	list, err := f.mgr.ListShipments(f.ctx, customer)
	require.NoError(t, err)
	var ids []uint
	for _, sh := range list {
		ids = append(ids, sh.ID)
	}
	assert.ElementsMatch(t, []uint{mine.ID, byName.ID}, ids)

	_, err = f.mgr.GetShipment(f.ctx, customer, other.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	stats, err := f.mgr.ShipmentStats(f.ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 3, stats.Pending)
}

func statusPtr(s models.VehicleStatus) *models.VehicleStatus { return &s }
