package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_tracker/internal/events"
	"fleet_tracker/internal/fleet"
	"fleet_tracker/internal/geo"
	"fleet_tracker/internal/logger"
	"fleet_tracker/internal/middleware"
	"fleet_tracker/internal/models"
	"fleet_tracker/internal/requests"
	"fleet_tracker/internal/store"
	"fleet_tracker/internal/tracking"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	hub    *tracking.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Discard()
	st := store.NewMemoryStore()
	hub := tracking.NewHub(log, nil)
	bus := events.NewFanout(log, hub.Publisher())
	synth := geo.NewSynthesizer(geo.NewGeocoder(log), rand.NewSource(3))

	router := SetupRouter(Deps{
		Users:      st,
		Fleet:      fleet.NewManager(st, synth, bus, log),
		Requests:   requests.NewService(st, bus, log),
		Hub:        hub,
		Auth:       middleware.NewAuth("routes-test-secret", time.Hour),
		SendBuffer: 16,
		Log:        log,
	})
	return &testServer{router: router, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type account struct {
	ID    uint
	Token string
}

func (s *testServer) signup(t *testing.T, name, role string) account {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{
		"name":     name,
		"email":    strings.ToLower(name) + "@example.com",
		"password": "secret123",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID uint `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return account{ID: resp.User.ID, Token: resp.Token}
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestSignupAndLogin(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "Priya", "")

	w := s.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{
		"name": "Priya", "email": "priya@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/signup", "", gin.H{
		"name": "Eve", "email": "eve@example.com", "password": "secret123", "role": "sacco",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "PRIYA@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "priya@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestShipmentLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.signup(t, "Ops", models.RoleAdmin)
	customer := s.signup(t, "Priya", models.RoleCustomer)
	other := s.signup(t, "Karan", models.RoleCustomer)
	driver := s.signup(t, "Ravi", models.RoleDriver)

	w := s.do(t, http.MethodPost, "/api/vehicles", customer.Token, gin.H{"vehicle_number": "MH01X1"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/vehicles", admin.Token, gin.H{
		"vehicle_number": "mh01x1",
		"driver_name":    "Ravi",
		"driver_id":      driver.ID,
		"capacity":       1500,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var vehicle models.Vehicle
	decodeData(t, w, &vehicle)
	assert.Equal(t, "MH01X1", vehicle.VehicleNumber)

	w = s.do(t, http.MethodPost, "/api/shipments", admin.Token, gin.H{
		"customer_name":      "Priya",
		"customer_id":        customer.ID,
		"source":             "Mumbai",
		"destination":        "Pune",
		"approximate_weight": 400,
		"vehicle_number":     "MH01X1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sh models.Shipment
	decodeData(t, w, &sh)
	require.NotNil(t, sh.AssignedVehicleID)
	assert.Equal(t, vehicle.ID, *sh.AssignedVehicleID)

	w = s.do(t, http.MethodGet, "/api/shipments", customer.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = s.do(t, http.MethodGet, "/api/shipments", other.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/shipments/%d", sh.ID), other.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/shipments/%d/route", sh.ID), customer.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"LineString"`)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/shipments/%d/status", sh.ID), admin.Token, gin.H{"status": "delivered"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/shipments/%d/start-trip", sh.ID), driver.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeData(t, w, &sh)
	assert.Equal(t, models.ShipmentInTransit, sh.Status)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/shipments/%d/pod", sh.ID), driver.Token, gin.H{"receiver_name": "Front desk"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/shipments/%d/epod", sh.ID), other.Token, gin.H{"signature": "data:image/png;base64,AA=="})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/shipments/%d/epod", sh.ID), customer.Token, gin.H{"signature": "data:image/png;base64,AA=="})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeData(t, w, &sh)
	assert.Equal(t, models.ShipmentDelivered, sh.Status)
	require.NotNil(t, sh.AssignedVehicleID)
	assert.Equal(t, vehicle.ID, *sh.AssignedVehicleID)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/vehicles/%d", vehicle.ID), admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &vehicle)
	assert.Equal(t, models.VehicleActive, vehicle.Status)

	// the driver still sees the delivered shipment
	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/shipments/%d", sh.ID), driver.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/shipments/%d", sh.ID), admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "cleanup_errors")

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/vehicles/%d", vehicle.ID), admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &vehicle)
	assert.Equal(t, models.VehicleIdle, vehicle.Status)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/shipments/%d", sh.ID), admin.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssignEndpointConflicts(t *testing.T) {
	s := newTestServer(t)
	admin := s.signup(t, "Ops", models.RoleAdmin)

	w := s.do(t, http.MethodPost, "/api/vehicles", admin.Token, gin.H{"vehicle_number": "KA05AA1", "driver_name": "Anil"})
	require.Equal(t, http.StatusCreated, w.Code)
	var v models.Vehicle
	decodeData(t, w, &v)

	ids := make([]uint, 2)
	for i := range ids {
		w = s.do(t, http.MethodPost, "/api/shipments", admin.Token, gin.H{
			"customer_name": "Acme", "source": "Chennai", "destination": "Bangalore",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		var sh models.Shipment
		decodeData(t, w, &sh)
		ids[i] = sh.ID
	}

	w = s.do(t, http.MethodPost, "/api/vehicles/assign", admin.Token, gin.H{"vehicle_id": v.ID, "shipment_id": ids[0]})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/vehicles/assign", admin.Token, gin.H{"vehicle_id": v.ID, "shipment_id": ids[1]})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/vehicles/%d", v.ID), admin.Token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/vehicles/unassign/%d", v.ID), admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/vehicles/unassign/%d", v.ID), admin.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/vehicles/abc", admin.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(t, http.MethodGet, "/api/vehicles/999", admin.Token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestReviewOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin := s.signup(t, "Ops", models.RoleAdmin)
	customer := s.signup(t, "Priya", models.RoleCustomer)

	w := s.do(t, http.MethodPost, "/api/requests", customer.Token, gin.H{
		"shipment_details":   "20 cartons of tiles",
		"source":             "Jaipur",
		"destination":        "Delhi",
		"pickup_date":        "2026-11-02T08:00:00Z",
		"approximate_weight": 750,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var req models.DeliveryRequest
	decodeData(t, w, &req)
	assert.Equal(t, models.RequestPending, req.Status)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/requests/%d/approve", req.ID), customer.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/requests/%d/reject", req.ID), admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeData(t, w, &req)
	assert.Equal(t, models.RequestRejected, req.Status)

	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/requests/%d/approve", req.ID), admin.Token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/api/requests?status=rejected", customer.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func dialTracking(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/tracking?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil returns the first frame of the given type, skipping others.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var frame map[string]interface{}
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["type"] == frameType {
			return frame
		}
	}
}

func TestLiveTrackingOverWebsocket(t *testing.T) {
	s := newTestServer(t)
	admin := s.signup(t, "Ops", models.RoleAdmin)
	customer := s.signup(t, "Priya", models.RoleCustomer)
	stranger := s.signup(t, "Karan", models.RoleCustomer)
	driver := s.signup(t, "Ravi", models.RoleDriver)

	w := s.do(t, http.MethodPost, "/api/vehicles", admin.Token, gin.H{
		"vehicle_number": "DL3C4455", "driver_name": "Ravi", "driver_id": driver.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, http.MethodPost, "/api/shipments", admin.Token, gin.H{
		"customer_name": "Priya", "customer_id": customer.ID,
		"source": "Delhi", "destination": "Agra", "vehicle_number": "DL3C4455",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var sh models.Shipment
	decodeData(t, w, &sh)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/tracking?token=bogus", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	outsider := dialTracking(t, srv, stranger.Token)
	require.NoError(t, outsider.WriteJSON(gin.H{"type": tracking.MsgJoinShipment, "shipment_id": sh.ReferenceID}))
	errFrame := readUntil(t, outsider, tracking.MsgError)
	assert.NotEmpty(t, errFrame["error"])

	watcher := dialTracking(t, srv, customer.Token)
	require.NoError(t, watcher.WriteJSON(gin.H{"type": tracking.MsgJoinShipment, "shipment_id": sh.ReferenceID}))
	require.Eventually(t, func() bool {
		return s.hub.SubscriberCount(sh.ReferenceID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	sender := dialTracking(t, srv, driver.Token)
	require.NoError(t, sender.WriteJSON(gin.H{
		"type":        tracking.MsgDriverLocation,
		"shipment_id": sh.ReferenceID,
		"data":        gin.H{"lat": 27.9, "lng": 77.6, "timestamp": "2026-10-16T10:00:00"},
	}))
	ack := readUntil(t, sender, "location-ack")
	assert.EqualValues(t, 1, ack["delivered"])

	update := readUntil(t, watcher, string(events.TypeLocationUpdate))
	data, ok := update["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, sh.ReferenceID, data["shipment_id"])
	assert.Equal(t, "DL3C4455", data["vehicle_number"])
	assert.Equal(t, "Ravi", data["driver_name"])
	assert.EqualValues(t, 27.9, data["lat"])

	require.NoError(t, watcher.WriteJSON(gin.H{"type": tracking.MsgLeaveShipment, "shipment_id": sh.ReferenceID}))
	require.Eventually(t, func() bool {
		return s.hub.ChannelCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, watcher.WriteJSON(gin.H{"type": "dance"}))
	errFrame = readUntil(t, watcher, tracking.MsgError)
	assert.Contains(t, errFrame["error"], "unknown message type")
}
