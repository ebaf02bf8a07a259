package matchups

import (
	"testing"
)

func byWeek(pairings []Pairing) map[int][]Pairing {
	weeks := make(map[int][]Pairing)
	for _, p := range pairings {
		weeks[p.Week] = append(weeks[p.Week], p)
	}
	return weeks
}

func TestSchedule_EveryonePlaysEveryWeek(t *testing.T) {
	users := []string{"a", "b", "c", "d"}
	weeks := byWeek(Schedule(users, 3))

	if len(weeks) != 3 {
		t.Fatalf("weeks scheduled = %d, want 3", len(weeks))
	}
	for week, pairings := range weeks {
		if len(pairings) != 2 {
			t.Fatalf("week %d has %d pairings, want 2", week, len(pairings))
		}
		seen := make(map[string]bool)
		for _, p := range pairings {
			if p.User1 == p.User2 {
				t.Errorf("week %d: self-pairing %q", week, p.User1)
			}
			for _, u := range []string{p.User1, p.User2} {
				if u == "" {
					t.Errorf("week %d: bye with even member count", week)
				}
				if seen[u] {
					t.Errorf("week %d: %q scheduled twice", week, u)
				}
				seen[u] = true
			}
		}
		if len(seen) != len(users) {
			t.Errorf("week %d covers %d users, want %d", week, len(seen), len(users))
		}
	}
}

// Over the first n-1 weeks every user meets every other user exactly once.
func TestSchedule_RoundRobinDistinctOpponents(t *testing.T) {
	users := []string{"a", "b", "c", "d"}
	opponents := make(map[string]map[string]int)
	for _, u := range users {
		opponents[u] = make(map[string]int)
	}

	for _, p := range Schedule(users, 3) {
		opponents[p.User1][p.User2]++
		opponents[p.User2][p.User1]++
	}

	for u, met := range opponents {
		if len(met) != 3 {
			t.Errorf("%q met %d opponents, want 3", u, len(met))
		}
		for opp, count := range met {
			if count != 1 {
				t.Errorf("%q met %q %d times in one round-robin cycle", u, opp, count)
			}
		}
	}
}

// Once the distinct rounds are exhausted the rotation wraps, so week n
// repeats week n-rounds.
func TestSchedule_WrapsIntoRematches(t *testing.T) {
	users := []string{"a", "b", "c", "d"}
	weeks := byWeek(Schedule(users, 4))

	match := func(p Pairing) [2]string {
		if p.User2 < p.User1 {
			return [2]string{p.User2, p.User1}
		}
		return [2]string{p.User1, p.User2}
	}

	week1 := make(map[[2]string]bool)
	for _, p := range weeks[1] {
		week1[match(p)] = true
	}
	for _, p := range weeks[4] {
		if !week1[match(p)] {
			t.Errorf("week 4 pairing %v is not a rematch of week 1", p)
		}
	}
}

func TestSchedule_OddCountGetsByes(t *testing.T) {
	users := []string{"a", "b", "c"}
	pairings := Schedule(users, 2)

	for week, ps := range byWeek(pairings) {
		if len(ps) != 2 {
			t.Fatalf("week %d has %d pairings, want 2 (one is a bye)", week, len(ps))
		}
		byes := 0
		for _, p := range ps {
			if p.User1 == "" {
				t.Errorf("week %d: bye recorded in User1", week)
			}
			if p.User2 == "" {
				byes++
			}
		}
		if byes != 1 {
			t.Errorf("week %d byes = %d, want 1", week, byes)
		}
	}
}

func TestSchedule_DegenerateInputs(t *testing.T) {
	if got := Schedule([]string{"solo"}, 4); got != nil {
		t.Errorf("single member schedule = %v, want nil", got)
	}
	if got := Schedule([]string{"a", "b"}, 0); got != nil {
		t.Errorf("zero weeks schedule = %v, want nil", got)
	}
}
