package usecase

import "testing"

func TestSchemaChecker(t *testing.T) {
	checker, err := NewSchemaChecker()
	if err != nil {
		t.Fatalf("NewSchemaChecker() error = %v", err)
	}

	tests := []struct {
		name    string
		obj     map[string]any
		wantErr bool
	}{
		{
			name: "conforming object",
			obj: map[string]any{
				"name":     "Aqua",
				"price":    float64(3500),
				"unit":     "600ml",
				"sku":      nil,
				"category": "Food & Beverage",
			},
		},
		{
			name: "null price is allowed",
			obj:  map[string]any{"name": "Aqua", "price": nil, "category": "Other"},
		},
		{
			name:    "price as string",
			obj:     map[string]any{"name": "Aqua", "price": "Rp 3.500", "category": "Other"},
			wantErr: true,
		},
		{
			name:    "category outside the enumeration",
			obj:     map[string]any{"name": "Aqua", "price": float64(1), "category": "Hair"},
			wantErr: true,
		},
		{
			name:    "missing name",
			obj:     map[string]any{"price": float64(1), "category": "Other"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checker.Check(tt.obj)
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
