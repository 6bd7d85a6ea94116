package api

import (
	"testing"

	json "github.com/goccy/go-json"

	"github.com/docai/core/payload"
)

func TestDagRunCreateInputValidate(t *testing.T) {
	emptyChatbot := ""
	chatbot := "bot-1"
	params := payload.MustFromAny(map[string]any{"doc": "invoice.pdf"})

	data := []struct {
		name    string
		input   DagRunCreateInput
		isValid bool
	}{
		{"minimal", DagRunCreateInput{DagName: "etl"}, true},
		{"with params", DagRunCreateInput{DagName: "etl", Params: params}, true},
		{"with chatbot", DagRunCreateInput{DagName: "etl", ChatbotId: &chatbot}, true},
		{"no dag name", DagRunCreateInput{}, false},
		{"empty chatbot", DagRunCreateInput{DagName: "etl", ChatbotId: &emptyChatbot}, false},
		{"array params", DagRunCreateInput{
			DagName: "etl",
			Params:  payload.ArrayValue(payload.NumberValue(1)),
		}, false},
	}

	for _, d := range data {
		err := d.input.Validate()
		if d.isValid && err != nil {
			t.Errorf("For %s expected valid input, got: %s", d.name,
				err.Error())
		}
		if !d.isValid && err == nil {
			t.Errorf("For %s expected validation error", d.name)
		}
	}
}

func TestTaskStatusUpdateInputValidate(t *testing.T) {
	fn := "ocr"
	empty := ""
	data := []struct {
		input   TaskStatusUpdateInput
		isValid bool
	}{
		{TaskStatusUpdateInput{TaskName: "extract"}, true},
		{TaskStatusUpdateInput{TaskName: "extract", Function: &fn}, true},
		{TaskStatusUpdateInput{TaskName: ""}, false},
		{TaskStatusUpdateInput{TaskName: "extract", Function: &empty}, false},
	}
	for _, d := range data {
		err := d.input.Validate()
		if d.isValid != (err == nil) {
			t.Errorf("For %+v expected valid=%v, got err: %v", d.input,
				d.isValid, err)
		}
	}
}

func TestTaskStatusUpdateInputJSON(t *testing.T) {
	body := `{"taskName":"extract","content":{"ok":true,"pages":3},"function":"ocr"}`
	var in TaskStatusUpdateInput
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		t.Fatalf("Cannot unmarshal callback input: %s", err.Error())
	}
	if in.TaskName != "extract" {
		t.Errorf("Expected task extract, got: %s", in.TaskName)
	}
	if in.Function == nil || *in.Function != "ocr" {
		t.Errorf("Expected function ocr, got: %v", in.Function)
	}
	pages, _ := in.Content.Get("pages")
	if n, ok := pages.AsNumber(); !ok || n != 3 {
		t.Errorf("Expected 3 pages in content, got: %v", pages)
	}
}

func TestDagRunDetailsJSONIsFlat(t *testing.T) {
	details := DagRunDetails{
		DagRunSummary: DagRunSummary{RunId: "r1", DagName: "etl",
			Status: "running"},
		Tenant:      "acme",
		StatusStack: []TaskStatus{},
	}
	raw, err := json.Marshal(details)
	if err != nil {
		t.Fatalf("Cannot marshal details: %s", err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("Cannot unmarshal details: %s", err.Error())
	}
	if m["runId"] != "r1" || m["tenant"] != "acme" {
		t.Errorf("Expected flat JSON object, got: %s", string(raw))
	}
}
