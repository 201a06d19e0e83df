package connectivity

import "testing"

func TestMonitor(t *testing.T) {
	t.Run("reports seeded state", func(t *testing.T) {
		if !NewMonitor(true, nil).Online() {
			t.Error("Online() = false, want true")
		}
		if NewMonitor(false, nil).Online() {
			t.Error("Online() = true, want false")
		}
	})

	t.Run("notifies only on transitions", func(t *testing.T) {
		m := NewMonitor(true, nil)

		var events []bool
		m.Subscribe(func(online bool) { events = append(events, online) })

		m.SetOnline(true)  // no transition
		m.SetOnline(false) // transition
		m.SetOnline(false) // no transition
		m.SetOnline(true)  // transition

		if len(events) != 2 || events[0] != false || events[1] != true {
			t.Errorf("events = %v, want [false true]", events)
		}
	})

	t.Run("unsubscribe stops notifications", func(t *testing.T) {
		m := NewMonitor(true, nil)

		var count int
		unsub := m.Subscribe(func(bool) { count++ })

		m.SetOnline(false)
		unsub()
		m.SetOnline(true)

		if count != 1 {
			t.Errorf("count = %d, want 1", count)
		}
	})

	t.Run("subscribers are independent", func(t *testing.T) {
		m := NewMonitor(false, nil)

		var a, b int
		unsubA := m.Subscribe(func(bool) { a++ })
		m.Subscribe(func(bool) { b++ })

		m.SetOnline(true)
		unsubA()
		m.SetOnline(false)

		if a != 1 || b != 2 {
			t.Errorf("a = %d, b = %d, want 1 and 2", a, b)
		}
	})
}
