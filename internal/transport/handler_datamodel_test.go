package transport

import "testing"

func TestListDataTypes(t *testing.T) {
	r := NewRouter(testDeps())

	code, body := doJSON(t, r, "GET", "/datamodels", nil)
	if code != 200 {
		t.Fatalf("status = %d, want 200", code)
	}
	types, _ := body["dataTypes"].([]any)
	if len(types) != 1 || types[0] != "permit-model" {
		t.Errorf("dataTypes = %v, want [permit-model]", types)
	}
}

func TestListFields_all(t *testing.T) {
	r := NewRouter(testDeps())

	code, body := doJSON(t, r, "GET", "/datamodels/permit-model/fields", nil)
	if code != 200 {
		t.Fatalf("status = %d, want 200", code)
	}
	fields, _ := body["fields"].([]any)
	if len(fields) != 4 {
		t.Errorf("fields = %d, want 4", len(fields))
	}
}

func TestListFields_filteredForSimpleBinding(t *testing.T) {
	r := NewRouter(testDeps())

	code, body := doJSON(t, r, "GET",
		"/datamodels/permit-model/fields?componentType=Input&bindingKey=simpleBinding", nil)
	if code != 200 {
		t.Fatalf("status = %d, want 200", code)
	}

	// The repeating "items" node is not assignable to a simple binding.
	fields, _ := body["fields"].([]any)
	for _, f := range fields {
		m := f.(map[string]any)
		if m["dataBindingName"] == "items" {
			t.Errorf("repeating field should be filtered out: %v", fields)
		}
	}
	if len(fields) != 3 {
		t.Errorf("fields = %d, want 3", len(fields))
	}
}

func TestListFields_filteredForGroupBinding(t *testing.T) {
	r := NewRouter(testDeps())

	code, body := doJSON(t, r, "GET",
		"/datamodels/permit-model/fields?componentType=Group&bindingKey=group", nil)
	if code != 200 {
		t.Fatalf("status = %d, want 200", code)
	}
	fields, _ := body["fields"].([]any)
	if len(fields) != 1 {
		t.Fatalf("fields = %d, want 1 (only the repeating node)", len(fields))
	}
	if fields[0].(map[string]any)["dataBindingName"] != "items" {
		t.Errorf("field = %v, want items", fields[0])
	}
}

func TestListFields_unknownDataType(t *testing.T) {
	r := NewRouter(testDeps())

	code, _ := doJSON(t, r, "GET", "/datamodels/nope/fields", nil)
	if code != 404 {
		t.Errorf("status = %d, want 404", code)
	}
}
