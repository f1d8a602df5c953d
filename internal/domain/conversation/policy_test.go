package conversation

import (
	"testing"

	"github.com/avenlabs/chat-scheduler/internal/models"
)

const threshold = 0.6

func TestMergeFillsAbsentFieldAtThreshold(t *testing.T) {
	slots := models.SlotSet{}
	out := Merge(slots, Candidates{
		FieldDate: {Value: "2026-09-08", Confidence: 0.9},
	}, threshold)

	v, ok := SlotValue(out, FieldDate)
	if !ok || v != "2026-09-08" {
		t.Fatalf("date not filled: %+v", out)
	}
}

func TestMergeSubThresholdBecomesHintNotValue(t *testing.T) {
	slots := models.SlotSet{}
	out := Merge(slots, Candidates{
		FieldDate: {Value: "next week", Confidence: 0.3},
	}, threshold)

	if _, ok := SlotValue(out, FieldDate); ok {
		t.Fatalf("sub-threshold candidate became a value: %+v", out)
	}
	if out.Hints[FieldDate] != "next week" {
		t.Fatalf("hint not recorded: %+v", out)
	}
}

func TestMergeNeverDowngradesConfidentValue(t *testing.T) {
	slots := models.SlotSet{}
	slots = Merge(slots, Candidates{FieldTime: {Value: "15:00", Confidence: 0.95}}, threshold)

	out := Merge(slots, Candidates{FieldTime: {Value: "10:00", Confidence: 0.7}}, threshold)
	if v, _ := SlotValue(out, FieldTime); v != "15:00" {
		t.Fatalf("lower-confidence candidate replaced value: %+v", out)
	}

	out = Merge(slots, Candidates{FieldTime: {Value: "10:00", Confidence: 0.95}}, threshold)
	if v, _ := SlotValue(out, FieldTime); v != "10:00" {
		t.Fatalf("equal-confidence candidate should replace value: %+v", out)
	}
}

func TestMergeIgnoresEmptyCandidates(t *testing.T) {
	out := Merge(models.SlotSet{}, Candidates{FieldDate: {Value: "", Confidence: 0.9}}, threshold)
	if len(out.Fields) != 0 || len(out.Hints) != 0 {
		t.Fatalf("empty candidate left a trace: %+v", out)
	}
}

func TestAdvanceAsksInFixedOrder(t *testing.T) {
	slots := models.SlotSet{}

	slots, action := Advance(slots)
	if action.Kind != ActionAsk || action.Field != FieldIntent {
		t.Fatalf("expected ask intent, got %+v", action)
	}

	slots = Merge(slots, Candidates{FieldIntent: {Value: IntentBooking, Confidence: 0.9}}, threshold)
	slots, action = Advance(slots)
	if action.Kind != ActionAsk || action.Field != FieldDate {
		t.Fatalf("expected ask date, got %+v", action)
	}

	slots = Merge(slots, Candidates{FieldDate: {Value: "2026-09-08", Confidence: 0.95}}, threshold)
	_, action = Advance(slots)
	if action.Kind != ActionAsk || action.Field != FieldTime {
		t.Fatalf("expected ask time, got %+v", action)
	}
}

func TestAdvanceInquiryShortCircuits(t *testing.T) {
	slots := Merge(models.SlotSet{}, Candidates{FieldIntent: {Value: IntentInquiry, Confidence: 0.9}}, threshold)
	_, action := Advance(slots)
	if action.Kind != ActionInquiry {
		t.Fatalf("expected inquiry action, got %+v", action)
	}
}

func TestAdvanceOptionalFieldsAskOnceThenDefault(t *testing.T) {
	slots := Merge(models.SlotSet{}, Candidates{
		FieldIntent: {Value: IntentBooking, Confidence: 0.9},
		FieldDate:   {Value: "2026-09-08", Confidence: 0.95},
		FieldTime:   {Value: "15:00", Confidence: 0.95},
	}, threshold)

	slots, action := Advance(slots)
	if action.Kind != ActionAsk || action.Field != FieldTimezone {
		t.Fatalf("expected ask timezone, got %+v", action)
	}

	// The user did not answer: the second pass defaults the timezone and
	// moves on to the service type.
	slots, action = Advance(slots)
	if action.Kind != ActionAsk || action.Field != FieldServiceType {
		t.Fatalf("expected ask service_type, got %+v", action)
	}
	if tz, _ := SlotValue(slots, FieldTimezone); tz != DefaultTimezone {
		t.Fatalf("timezone not defaulted: %+v", slots)
	}

	slots, action = Advance(slots)
	if action.Kind != ActionReady {
		t.Fatalf("expected ready, got %+v", action)
	}
	if svc, _ := SlotValue(slots, FieldServiceType); svc != DefaultService {
		t.Fatalf("service type not defaulted: %+v", slots)
	}
}

func TestAdvanceDefaultsStayOverridable(t *testing.T) {
	slots := Merge(models.SlotSet{}, Candidates{
		FieldIntent: {Value: IntentBooking, Confidence: 0.9},
		FieldDate:   {Value: "2026-09-08", Confidence: 0.95},
		FieldTime:   {Value: "15:00", Confidence: 0.95},
	}, threshold)

	for i := 0; i < 3; i++ {
		slots, _ = Advance(slots)
	}

	// A later explicit timezone must beat the applied default.
	slots = Merge(slots, Candidates{FieldTimezone: {Value: "America/New_York", Confidence: 0.95}}, threshold)
	if tz, _ := SlotValue(slots, FieldTimezone); tz != "America/New_York" {
		t.Fatalf("explicit timezone did not override default: %+v", slots)
	}
}
