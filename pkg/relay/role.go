package relay

// ActiveRole is told when this server starts or stops issuing forecasts
type ActiveRole interface {
	BecomePrimary()
	BecomeSecondary()
}

// NopRole ignores role signals
type NopRole struct{}

func (NopRole) BecomePrimary()   {}
func (NopRole) BecomeSecondary() {}

// RoleFuncs adapts a pair of functions to ActiveRole. Nil functions are skipped.
type RoleFuncs struct {
	OnPrimary   func()
	OnSecondary func()
}

func (f RoleFuncs) BecomePrimary() {
	if f.OnPrimary != nil {
		f.OnPrimary()
	}
}

func (f RoleFuncs) BecomeSecondary() {
	if f.OnSecondary != nil {
		f.OnSecondary()
	}
}
