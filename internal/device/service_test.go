package device

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRegistry_Create(t *testing.T) {
	issuer := &fakeIssuer{}
	reg, repo := newTestRegistry(t, issuer)

	device, creds, err := reg.Create(context.Background(), CreateInput{
		Name:     "  greenhouse-temp  ",
		Type:     "temperature",
		Location: "greenhouse",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if device.Name != "greenhouse-temp" {
		t.Errorf("Name = %q, want trimmed greenhouse-temp", device.Name)
	}
	if device.UUID == "" {
		t.Error("UUID not minted")
	}
	if !strings.HasPrefix(device.MQTTUsername, "dev-") {
		t.Errorf("MQTTUsername = %q, want dev- prefix", device.MQTTUsername)
	}
	if device.ClientID != creds.ClientID {
		t.Errorf("device ClientID %q != credentials ClientID %q", device.ClientID, creds.ClientID)
	}
	if creds.MQTTPassword == "" {
		t.Error("credentials missing plaintext password")
	}
	if device.Status != StatusUnknown {
		t.Errorf("Status = %q, want %q", device.Status, StatusUnknown)
	}

	// The stored record carries no password field at all.
	stored, err := repo.GetByUUID(context.Background(), device.UUID)
	if err != nil {
		t.Fatalf("GetByUUID: %v", err)
	}
	if stored.ClientID != creds.ClientID {
		t.Errorf("stored ClientID = %q, want %q", stored.ClientID, creds.ClientID)
	}
}

func TestRegistry_Create_CallerChosenUsername(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)

	device, creds, err := reg.Create(context.Background(), CreateInput{
		Name:         "pump-house",
		MQTTUsername: "pumphouse01",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if device.MQTTUsername != "pumphouse01" || creds.MQTTUsername != "pumphouse01" {
		t.Errorf("MQTTUsername = %q/%q, want pumphouse01", device.MQTTUsername, creds.MQTTUsername)
	}
}

func TestRegistry_Create_Validation(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)

	tests := []struct {
		name  string
		input CreateInput
	}{
		{"blank name", CreateInput{Name: "   "}},
		{"name too long", CreateInput{Name: strings.Repeat("x", maxNameLength+1)}},
		{"type too long", CreateInput{Name: "ok", Type: strings.Repeat("x", maxTypeLength+1)}},
		{"location too long", CreateInput{Name: "ok", Location: strings.Repeat("x", maxLocationLength+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := reg.Create(context.Background(), tt.input)
			if !errors.Is(err, ErrInvalidDevice) {
				t.Errorf("Create error = %v, want ErrInvalidDevice", err)
			}
		})
	}
}

func TestRegistry_Create_IssuerFailure(t *testing.T) {
	issuer := &fakeIssuer{err: ErrProvisioningConflict}
	reg, repo := newTestRegistry(t, issuer)

	_, _, err := reg.Create(context.Background(), CreateInput{Name: "sensor"})
	if !errors.Is(err, ErrProvisioningConflict) {
		t.Fatalf("Create error = %v, want ErrProvisioningConflict", err)
	}

	// No device row is left behind when provisioning fails.
	count, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("Count = %d, want 0", count)
	}
}

func TestRegistry_Create_DuplicateName(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	if _, _, err := reg.Create(ctx, CreateInput{Name: "sensor"}); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, _, err := reg.Create(ctx, CreateInput{Name: "sensor"})
	if !errors.Is(err, ErrNameExists) {
		t.Errorf("second Create error = %v, want ErrNameExists", err)
	}
}

func TestRegistry_List_Clamping(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if _, _, err := reg.Create(ctx, CreateInput{Name: name}); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}

	tests := []struct {
		name       string
		limit      int
		offset     int
		wantLimit  int
		wantOffset int
	}{
		{"defaults", 0, 0, 20, 0},
		{"clamped to max", 500, 0, 100, 0},
		{"negative offset", 10, -5, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := reg.List(ctx, tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if page.Limit != tt.wantLimit || page.Offset != tt.wantOffset {
				t.Errorf("page limit/offset = %d/%d, want %d/%d",
					page.Limit, page.Offset, tt.wantLimit, tt.wantOffset)
			}
			if page.Total != 3 {
				t.Errorf("Total = %d, want 3", page.Total)
			}
		})
	}
}
