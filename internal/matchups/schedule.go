// Package matchups pairs group members into weekly head-to-head contests
// scored by portfolio value. The schedule is generated once when the draft
// completes; scores are refreshed from portfolios on every read.
package matchups

// Pairing is one scheduled head-to-head contest. User2 is empty when the
// member count is odd and User1 has a bye that week.
type Pairing struct {
	Week  int
	User1 string
	User2 string
}

// Schedule builds a round-robin schedule over the given weeks using the
// circle method: one seat fixed, the rest rotating each week. With more weeks
// than distinct rounds the rotation wraps, so rematches repeat in order.
func Schedule(userIDs []string, weeks int) []Pairing {
	n := len(userIDs)
	if n < 2 || weeks < 1 {
		return nil
	}

	// Odd counts get a phantom seat; pairing against it is a bye.
	seats := append([]string(nil), userIDs...)
	if n%2 == 1 {
		seats = append(seats, "")
		n++
	}

	var pairings []Pairing
	rounds := n - 1
	for week := 1; week <= weeks; week++ {
		r := (week - 1) % rounds
		for i := 0; i < n/2; i++ {
			a := seatAt(seats, r, i)
			b := seatAt(seats, r, n-1-i)
			if a == "" {
				a, b = b, a
			}
			pairings = append(pairings, Pairing{Week: week, User1: a, User2: b})
		}
	}
	return pairings
}

// seatAt returns the seat occupant at position pos after round rotations.
// Position 0 is fixed; the others rotate through positions 1..n-1.
func seatAt(seats []string, round, pos int) string {
	if pos == 0 {
		return seats[0]
	}
	n := len(seats)
	return seats[1+((pos-1+round)%(n-1))]
}
