package checkout

// Screen is the view the kiosk display should render.
type Screen string

const (
	ScreenHome          Screen = "home"
	ScreenProductDetail Screen = "product-detail"
	ScreenOrderSummary  Screen = "order-summary"
	ScreenPayment       Screen = "payment"
	ScreenDispensing    Screen = "dispensing"
	ScreenSuccess       Screen = "success"
	ScreenError         Screen = "error"
)

// validNext is the full forward/backward edge set. The error screen is
// reachable from everywhere (see CanTransition); both terminal screens only
// lead back to home. There is no payment -> home edge: the only way out of
// payment besides dispensing is a full transaction reset.
var validNext = map[Screen]map[Screen]bool{
	ScreenHome:          {ScreenProductDetail: true},
	ScreenProductDetail: {ScreenHome: true, ScreenOrderSummary: true},
	ScreenOrderSummary:  {ScreenProductDetail: true, ScreenPayment: true},
	ScreenPayment:       {ScreenDispensing: true},
	ScreenDispensing:    {ScreenSuccess: true},
	ScreenSuccess:       {ScreenHome: true},
	ScreenError:         {ScreenHome: true},
}

// CanTransition reports whether the display may move from one screen to
// another. Every screen may fail over to the error screen.
func CanTransition(from, to Screen) bool {
	if to == ScreenError {
		return from != ScreenError
	}
	return validNext[from][to]
}
