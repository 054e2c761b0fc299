package registration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"delfin/internal/config"
	appLog "delfin/internal/log"
	"delfin/internal/model"
	"delfin/internal/store"
	"delfin/internal/validation"
)

func TestMain(m *testing.M) {
	appLog.SetOutput(io.Discard)
	m.Run()
}

func validRegistration() model.GuestRegistration {
	return model.GuestRegistration{
		Name:                   "Lucía",
		Surname:                "García",
		BirthDate:              "1990-04-12",
		BirthPlace:             "Sevilla",
		Nationality:            "ES",
		DocumentType:           model.DocumentDNI,
		DocumentNumber:         "12345678Z",
		DocumentIssuingCountry: "ES",
		DocumentExpiryDate:     "2031-01-01",
		Email:                  "lucia@example.com",
		Phone:                  "+34 612 345 678",
		Address:                "Calle Sierpes 1",
		City:                   "Sevilla",
		PostalCode:             "41004",
		Country:                "ES",
		ArrivalDate:            "2024-06-10",
		DepartureDate:          "2024-06-12",
		RoomNumber:             "3",
		TravelPurpose:          model.PurposeTourism,
		AcceptsTerms:           true,
		AcceptsDataProcessing:  true,
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(validRegistration()); err != nil {
		t.Fatalf("valid registration rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*model.GuestRegistration)
		field  string
	}{
		{"missing consent", func(r *model.GuestRegistration) { r.AcceptsDataProcessing = false }, "accepts_data_processing"},
		{"missing terms", func(r *model.GuestRegistration) { r.AcceptsTerms = false }, "accepts_terms"},
		{"bad email", func(r *model.GuestRegistration) { r.Email = "lucia" }, "email"},
		{"bad document", func(r *model.GuestRegistration) { r.DocumentType = "visa" }, "document_type"},
		{"bad purpose", func(r *model.GuestRegistration) { r.TravelPurpose = "party" }, "travel_purpose"},
		{"bad date", func(r *model.GuestRegistration) { r.BirthDate = "12/04/1990" }, "birth_date"},
		{"missing surname", func(r *model.GuestRegistration) { r.Surname = "" }, "surname"},
		{"departure before arrival", func(r *model.GuestRegistration) { r.DepartureDate = "2024-06-09" }, "departure_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := validRegistration()
			tt.mutate(&reg)
			err := Validate(reg)
			var verr *validation.Error
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want *validation.Error", err)
			}
			if _, ok := verr.Fields[tt.field]; !ok {
				t.Errorf("fields = %v, want %s", verr.Fields, tt.field)
			}
		})
	}
}

func TestValidateSameDayStay(t *testing.T) {
	reg := validRegistration()
	reg.DepartureDate = reg.ArrivalDate
	if err := Validate(reg); err != nil {
		t.Errorf("same-day stay rejected: %v", err)
	}
}

func TestGenderFromDocument(t *testing.T) {
	tests := map[string]string{
		"12345678Z": "FEMALE",
		"12345677X": "MALE",
		"X1234567L": "UNKNOWN",
		"1234567Z":  "UNKNOWN",
		"12345678z": "UNKNOWN",
		"":          "UNKNOWN",
	}
	for in, want := range tests {
		if got := GenderFromDocument(in); got != want {
			t.Errorf("GenderFromDocument(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildPayload(t *testing.T) {
	m := NewMinistry(config.MinistryConfig{EstablishmentCode: "H-4100123"})
	fixed := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	reg := validRegistration()
	reg.DocumentType = model.DocumentPassport
	reg.TravelPurpose = "unknown"
	p := m.BuildPayload(reg)

	if p.Establishment.Code != "H-4100123" || p.Establishment.Type != "HOTEL" {
		t.Errorf("establishment = %+v", p.Establishment)
	}
	if p.Traveler.Document.Type != "PASSPORT" || p.Stay.TravelPurpose != "OTHER" {
		t.Errorf("codes = %s / %s", p.Traveler.Document.Type, p.Stay.TravelPurpose)
	}
	if p.Traveler.PersonalData.Gender != "FEMALE" || p.Traveler.Contact.Address.City != "Sevilla" {
		t.Errorf("traveler = %+v", p.Traveler)
	}
	if p.ComplianceLaw != "Ley 4/2015 de Protección de Seguridad Ciudadana" || !p.RegistrationTimestamp.Equal(fixed) {
		t.Errorf("metadata = %q %v", p.ComplianceLaw, p.RegistrationTimestamp)
	}

	resp, err := m.Submit(context.Background(), reg)
	if err != nil {
		t.Fatal(err)
	}
	if resp.RegistrationID != "ES-1718010000000" || !resp.Success {
		t.Errorf("response = %+v", resp)
	}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "reg.db")+"?_foreign_keys=on")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestServiceSubmit(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	svc := NewService(st, NewMinistry(config.MinistryConfig{EstablishmentCode: "H-1"}))

	reg := validRegistration()
	if err := svc.Create(ctx, &reg); err != nil {
		t.Fatal(err)
	}
	if reg.Transmission != model.TransmissionNotSent {
		t.Fatalf("status = %s", reg.Transmission)
	}

	got, err := svc.Submit(ctx, reg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Transmission != model.TransmissionSent || got.MinistryError != "" {
		t.Fatalf("after submit = %s / %q", got.Transmission, got.MinistryError)
	}
	var resp Response
	if err := json.Unmarshal([]byte(got.MinistryResponse), &resp); err != nil {
		t.Fatalf("stored response: %v", err)
	}
	if !strings.HasPrefix(resp.RegistrationID, "ES-") {
		t.Errorf("registration id = %q", resp.RegistrationID)
	}

	if _, err := svc.Submit(ctx, reg.ID); !errors.Is(err, ErrAlreadySent) {
		t.Errorf("resubmit err = %v", err)
	}
	if _, err := svc.Submit(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestServiceSubmitWithoutEstablishment(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	svc := NewService(st, NewMinistry(config.MinistryConfig{}))

	reg := validRegistration()
	if err := svc.Create(ctx, &reg); err != nil {
		t.Fatal(err)
	}
	got, err := svc.Submit(ctx, reg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Transmission != model.TransmissionError || got.MinistryError != ErrNotConfigured.Error() {
		t.Errorf("got %s / %q", got.Transmission, got.MinistryError)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 || stats.Failed != 1 || stats.ComplianceRate != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestServiceCreateRejectsInvalid(t *testing.T) {
	st := openTestStore(t)
	svc := NewService(st, NewMinistry(config.MinistryConfig{}))
	reg := validRegistration()
	reg.AcceptsTerms = false
	if err := svc.Create(context.Background(), &reg); err == nil {
		t.Fatal("expected validation error")
	}
	regs, err := st.Registrations.List(context.Background())
	if err != nil || len(regs) != 0 {
		t.Errorf("stored %d registrations, err %v", len(regs), err)
	}
}
