// Package draft runs the snake draft that seeds every portfolio in a league.
//
// Turn order snakes: odd rounds walk the member list forward, even rounds walk
// it backward, so the member who picks last in one round picks first in the
// next.
package draft

// PickerIndex returns the zero-based index into the join-ordered member list
// of whoever owns the given pick. round and pickNumber are 1-based;
// pickNumber resets to 1 each round.
func PickerIndex(round, pickNumber, members int) int {
	if round%2 == 1 {
		return pickNumber - 1
	}
	return members - pickNumber
}

// NextPick advances the draft cursor by one pick. It returns the next round
// and pick number, the member index owning that pick, and done=true when the
// pick just made was the final one.
func NextPick(round, pickNumber, members, totalRounds int) (nextRound, nextPickNumber, pickerIdx int, done bool) {
	if pickNumber < members {
		nextRound, nextPickNumber = round, pickNumber+1
	} else {
		nextRound, nextPickNumber = round+1, 1
	}
	if nextRound > totalRounds {
		return 0, 0, -1, true
	}
	return nextRound, nextPickNumber, PickerIndex(nextRound, nextPickNumber, members), false
}
