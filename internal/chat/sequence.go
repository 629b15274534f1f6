package chat

// Direction is the direction of a Move.
type Direction int

const (
	Up Direction = iota
	Down
)

// Visible returns the first n messages of msgs, clamping n to [0, len(msgs)].
// The result shares the backing array with msgs and must not be modified.
func Visible(msgs []Message, n int) []Message {
	return msgs[:Clamp(n, len(msgs))]
}

// Clamp bounds a reveal cursor to [0, length].
func Clamp(n, length int) int {
	if length < 0 {
		length = 0
	}
	if n < 0 {
		return 0
	}
	if n > length {
		return length
	}
	return n
}

// Append returns msgs with m added at the end.
func Append(msgs []Message, m Message) []Message {
	out := make([]Message, 0, len(msgs)+1)
	out = append(out, msgs...)
	return append(out, m)
}

// Delete returns msgs without the message at index. Out-of-range indices
// return an unmodified copy.
func Delete(msgs []Message, index int) []Message {
	out := make([]Message, 0, len(msgs))
	for i, m := range msgs {
		if i != index {
			out = append(out, m)
		}
	}
	return out
}

// Move swaps the message at index with its neighbour in the given direction.
// Moves past either end return an unmodified copy.
func Move(msgs []Message, index int, dir Direction) []Message {
	out := append([]Message(nil), msgs...)
	target := index - 1
	if dir == Down {
		target = index + 1
	}
	if index < 0 || index >= len(out) || target < 0 || target >= len(out) {
		return out
	}
	out[index], out[target] = out[target], out[index]
	return out
}
