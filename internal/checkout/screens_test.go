package checkout

import "testing"

func TestCanTransitionForwardPath(t *testing.T) {
	path := []Screen{
		ScreenHome,
		ScreenProductDetail,
		ScreenOrderSummary,
		ScreenPayment,
		ScreenDispensing,
		ScreenSuccess,
		ScreenHome,
	}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Errorf("expected %s -> %s to be allowed", path[i], path[i+1])
		}
	}
}

func TestCanTransitionBackwardEdges(t *testing.T) {
	if !CanTransition(ScreenProductDetail, ScreenHome) {
		t.Error("expected product-detail -> home to be allowed")
	}
	if !CanTransition(ScreenOrderSummary, ScreenProductDetail) {
		t.Error("expected order-summary -> product-detail to be allowed")
	}
}

func TestCanTransitionRejectsInvalidEdges(t *testing.T) {
	cases := []struct{ from, to Screen }{
		{ScreenHome, ScreenPayment},
		{ScreenHome, ScreenSuccess},
		{ScreenPayment, ScreenHome},
		{ScreenPayment, ScreenOrderSummary},
		{ScreenDispensing, ScreenHome},
		{ScreenSuccess, ScreenPayment},
		{ScreenOrderSummary, ScreenDispensing},
	}
	for _, c := range cases {
		if CanTransition(c.from, c.to) {
			t.Errorf("expected %s -> %s to be rejected", c.from, c.to)
		}
	}
}

func TestErrorScreenReachableFromAnywhere(t *testing.T) {
	from := []Screen{
		ScreenHome, ScreenProductDetail, ScreenOrderSummary,
		ScreenPayment, ScreenDispensing, ScreenSuccess,
	}
	for _, f := range from {
		if !CanTransition(f, ScreenError) {
			t.Errorf("expected %s -> error to be allowed", f)
		}
	}
	if CanTransition(ScreenError, ScreenError) {
		t.Error("expected error -> error to be rejected")
	}
}

func TestErrorScreenOnlyLeadsHome(t *testing.T) {
	if !CanTransition(ScreenError, ScreenHome) {
		t.Error("expected error -> home to be allowed")
	}
	for _, to := range []Screen{ScreenProductDetail, ScreenOrderSummary, ScreenPayment, ScreenDispensing, ScreenSuccess} {
		if CanTransition(ScreenError, to) {
			t.Errorf("expected error -> %s to be rejected", to)
		}
	}
}
