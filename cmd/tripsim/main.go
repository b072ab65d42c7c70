package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/trip-ledger/internal/auth"
	"github.com/ukydev/trip-ledger/internal/models"
)

// Lanes for realistic routes
var lanes = []struct{ origin, destination string }{
	{"Mumbai", "Pune"},
	{"Delhi", "Jaipur"},
	{"Chennai", "Bengaluru"},
	{"Kolkata", "Dhanbad"},
	{"Ahmedabad", "Surat"},
	{"Hyderabad", "Vijayawada"},
	{"Nagpur", "Raipur"},
	{"Ludhiana", "Amritsar"},
}

var chargeTypes = []string{"loading", "unloading", "detention", "weighbridge"}

type simulator struct {
	apiURL string
	token  string
	client *http.Client
	rng    *rand.Rand
	logger log.FieldLogger
}

func newSimulator(apiURL, token string, seed int64) *simulator {
	return &simulator{
		apiURL: apiURL,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
		rng:    rand.New(rand.NewSource(seed)),
		logger: log.StandardLogger(),
	}
}

// apiError is a non-2xx answer from the API.
type apiError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// call sends body as JSON and decodes the response into out when non-nil.
// POSTs carry a fresh Idempotency-Key.
func (s *simulator) call(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.apiURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	if method == http.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{Method: method, Path: path, Status: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

type tripPlan struct {
	TripID     string
	PartyID    string
	SupplierID string
	TruckID    string
	DriverID   string
	Origin     string
	Dest       string
	Freight    int64
	Hire       int64
	Charge     int64
	Advance    int64
	Payment    int64
	ChargeType string
	Start      time.Time
}

// plan draws a trip whose advance and supplier payment stay inside the
// balances the API enforces.
func (s *simulator) plan(n int) tripPlan {
	lane := lanes[s.rng.Intn(len(lanes))]
	freight := int64(20000 + s.rng.Intn(60)*1000)
	hire := freight * int64(70+s.rng.Intn(15)) / 100
	charge := int64(500 + s.rng.Intn(10)*100)
	return tripPlan{
		TripID:     fmt.Sprintf("SIM-%03d-%s", n, uuid.NewString()[:8]),
		PartyID:    fmt.Sprintf("party-%d", 1+s.rng.Intn(5)),
		SupplierID: fmt.Sprintf("supplier-%d", 1+s.rng.Intn(3)),
		TruckID:    fmt.Sprintf("MH12-%04d", s.rng.Intn(10000)),
		DriverID:   fmt.Sprintf("driver-%d", 1+s.rng.Intn(20)),
		Origin:     lane.origin,
		Dest:       lane.destination,
		Freight:    freight,
		Hire:       hire,
		Charge:     charge,
		Advance:    freight / 4,
		Payment:    hire / 2,
		ChargeType: chargeTypes[s.rng.Intn(len(chargeTypes))],
		Start:      time.Now().UTC().AddDate(0, 0, -7),
	}
}

func day(start time.Time, offset int) string {
	return start.AddDate(0, 0, offset).Format("2006-01-02")
}

// runTrip takes one trip from creation to settlement.
func (s *simulator) runTrip(ctx context.Context, p tripPlan) error {
	logger := s.logger.WithField("trip_id", p.TripID)

	if err := s.call(ctx, http.MethodPost, "/trips", map[string]interface{}{
		"tripId":        p.TripID,
		"partyId":       p.PartyID,
		"supplierId":    p.SupplierID,
		"truckId":       p.TruckID,
		"driverId":      p.DriverID,
		"route":         map[string]string{"origin": p.Origin, "destination": p.Dest},
		"billingType":   models.BillingFixed,
		"amount":        p.Freight,
		"truckHireCost": p.Hire,
		"startDate":     day(p.Start, 0),
	}, nil); err != nil {
		return err
	}
	logger.WithFields(log.Fields{"freight": p.Freight, "hire": p.Hire}).Info("Created trip")

	if err := s.call(ctx, http.MethodPost, "/trips/"+p.TripID+"/charges", map[string]interface{}{
		"amount":      p.Charge,
		"expenseType": p.ChargeType,
		"partyBill":   true,
		"date":        day(p.Start, 0),
	}, nil); err != nil {
		return err
	}

	if err := s.call(ctx, http.MethodPost, "/parties/"+p.PartyID+"/payments", map[string]interface{}{
		"trip_id":          p.TripID,
		"accountType":      models.AccountAdvances,
		"amount":           p.Advance,
		"paymentType":      "Cash",
		"receivedByDriver": true,
		"date":             day(p.Start, 0),
	}, nil); err != nil {
		return err
	}

	if err := s.call(ctx, http.MethodPost, "/suppliers/"+p.SupplierID+"/payments", []map[string]interface{}{{
		"trip_id":     p.TripID,
		"accountType": models.AccountPayments,
		"amount":      p.Payment,
		"paymentType": "NEFT",
		"date":        day(p.Start, 1),
	}}, nil); err != nil {
		return err
	}
	logger.WithFields(log.Fields{"advance": p.Advance, "supplier_payment": p.Payment}).Info("Recorded payments")

	for st := models.StatusCompleted; st <= models.StatusSettled; st++ {
		data := map[string]interface{}{
			"status": int(st),
			"date":   day(p.Start, int(st)),
		}
		if st == models.StatusSettled {
			// amount 0 pays the remaining supplier balance
			data["paymentType"] = "NEFT"
		}
		if err := s.call(ctx, http.MethodPatch, "/trips/"+p.TripID, map[string]interface{}{"data": data}, nil); err != nil {
			return err
		}
		logger.WithField("status", st.String()).Info("Advanced trip")
	}
	return nil
}

// run drives count trips and returns how many reached Settled.
func (s *simulator) run(ctx context.Context, count int) int {
	settled := 0
	for i := 1; i <= count; i++ {
		if ctx.Err() != nil {
			break
		}
		p := s.plan(i)
		if err := s.runTrip(ctx, p); err != nil {
			s.logger.WithError(err).WithField("trip_id", p.TripID).Error("Trip simulation failed")
			continue
		}
		settled++
	}
	return settled
}

// tokenFromEnv prefers SIM_AUTH_TOKEN and otherwise mints a manager token
// when JWT_SECRET is available.
func tokenFromEnv() (string, error) {
	if token := os.Getenv("SIM_AUTH_TOKEN"); token != "" {
		return token, nil
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return "", nil
	}
	authService, err := auth.NewService(secret, time.Hour)
	if err != nil {
		return "", err
	}
	return authService.GenerateToken("tripsim", "tripsim", models.RoleManager)
}

func main() {
	token, err := tokenFromEnv()
	if err != nil {
		log.WithError(err).Fatal("Failed to mint simulator token")
	}
	if token == "" {
		log.Warn("Neither SIM_AUTH_TOKEN nor JWT_SECRET set; requests will be rejected")
	}

	trips := 5
	if val := os.Getenv("SIM_TRIPS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			trips = n
		}
	}

	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}

	log.WithFields(log.Fields{
		"trips":   trips,
		"api_url": apiURL,
	}).Info("Starting trip simulation")

	sim := newSimulator(apiURL, token, time.Now().UnixNano())
	settled := sim.run(context.Background(), trips)

	log.WithFields(log.Fields{"settled": settled, "trips": trips}).Info("Trip simulation completed")
	if settled < trips {
		os.Exit(1)
	}
}
