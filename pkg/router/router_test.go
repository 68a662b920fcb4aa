package router

import "testing"

func TestClassify_DecisionOrder(t *testing.T) {
	tests := []struct {
		message string
		want    Category
	}{
		{"hi", CategoryGreeting},
		{"Selamat pagi!", CategoryGreeting},
		{"who are you exactly?", CategoryIdentity},
		{"who is on the team this week", CategoryTeamQuery},
		{"what did we discuss yesterday", CategorySessionState},
		{"i am so frustrated with this process", CategoryEmotional},
		{"thanks a lot!", CategoryCasual},
		{"what documents do I need for a KITAS application procedure", CategoryBusinessComplex},
		{"kitas cost", CategoryBusinessSimple},
		{"tax optimization strategy for a holding company structure", CategoryBusinessStrategic},
		{"fix this golang stack trace for me", CategoryDevCode},
		{"ok", CategoryCasual},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got := Classify(tt.message)
			if got.Category != tt.want {
				t.Errorf("Classify(%q).Category = %s, want %s", tt.message, got.Category, tt.want)
			}
			if got.Confidence <= 0 || got.Confidence > 1 {
				t.Errorf("confidence %f out of (0,1]", got.Confidence)
			}
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	a := Classify("What documents do I need for a KITAS?")
	b := Classify("What documents do I need for a KITAS?")
	if *a != *b {
		t.Error("classification not deterministic")
	}
}

func TestClassify_TierMapping(t *testing.T) {
	if got := Classify("comprehensive analysis of multi-year tax strategy").SuggestedModelTier; got != TierDeepThink {
		t.Errorf("strategic tier = %s, want deep_think", got)
	}
	if got := Classify("hello").SuggestedModelTier; got != TierFast {
		t.Errorf("greeting tier = %s, want fast", got)
	}
}

func TestRouteCollections_PricingPrecedence(t *testing.T) {
	r := RouteCollections("how much is the investor kitas?", "legal_architect")
	if !r.IsPricing {
		t.Error("pricing not detected")
	}
	if r.CollectionName != CollectionPricing {
		t.Errorf("collection = %s, want %s despite override", r.CollectionName, CollectionPricing)
	}
	if len(r.Collections) != 1 || r.Collections[0] != CollectionPricing {
		t.Errorf("collections = %v", r.Collections)
	}
}

func TestRouteCollections_Override(t *testing.T) {
	r := RouteCollections("tell me about visas", "zantara_books")
	if r.CollectionName != CollectionBooks {
		t.Errorf("override ignored: %s", r.CollectionName)
	}
	if r.IsPricing {
		t.Error("override misdetected as pricing")
	}
}

func TestRouteCollections_Keywords(t *testing.T) {
	r := RouteCollections("do I need an NPWP for my PPh filing?", "")
	if r.CollectionName != CollectionTax {
		t.Errorf("collection = %s, want %s", r.CollectionName, CollectionTax)
	}

	r = RouteCollections("overstay penalty on my kitas and passport", "")
	if r.CollectionName != CollectionVisa {
		t.Errorf("collection = %s, want %s", r.CollectionName, CollectionVisa)
	}
}

func TestRouteCollections_NoSignalFansOut(t *testing.T) {
	r := RouteCollections("tell me something interesting", "")
	if len(r.Collections) < 2 {
		t.Errorf("expected fan-out, got %v", r.Collections)
	}
	if r.Confidence >= 0.5 {
		t.Errorf("no-signal confidence too high: %f", r.Confidence)
	}
}
