package app

import "fmt"

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a user whose send buffer is full.
type Policy interface {
	OnBackPressure(u *User) BackpressureAction
}

type DropPolicy struct{}

func (DropPolicy) OnBackPressure(*User) BackpressureAction { return DropFrame }

type KickPolicy struct{}

func (KickPolicy) OnBackPressure(*User) BackpressureAction { return KickMember }

func PolicyFor(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown slow consumer policy %q", name)
	}
}
