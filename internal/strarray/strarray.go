package strarray

// Array is an ordered sequence of owned strings. The zero value is an empty
// array ready for use.
type Array struct {
	items []string
}

// Build constructs an array from a head element plus a variadic
// continuation. It is the adapter that turns list-style call variants
// (execl, execlp, execle) into the vector shape used everywhere else.
func Build(first string, rest ...string) Array {
	items := make([]string, 0, len(rest)+1)
	items = append(items, first)
	items = append(items, rest...)
	return Array{items: items}
}

// FromSlice wraps an existing slice without copying. The caller hands over
// ownership of the slice.
func FromSlice(items []string) Array {
	return Array{items: items}
}

// Copy deep-duplicates the array. The result shares no backing storage with
// the receiver.
func (a Array) Copy() Array {
	items := make([]string, len(a.items))
	copy(items, a.items)
	return Array{items: items}
}

// Append grows the array by one element and returns the grown array. The
// receiver must not be used afterwards; ownership moves to the result.
func (a Array) Append(s string) Array {
	return Array{items: append(a.items, s)}
}

// Set replaces the element at index i in place.
func (a Array) Set(i int, s string) {
	a.items[i] = s
}

// At returns the element at index i.
func (a Array) At(i int) string {
	return a.items[i]
}

// Len returns the number of elements.
func (a Array) Len() int {
	return len(a.items)
}

// Slice exposes the backing slice. Callers must treat the result as
// read-only unless they own the array.
func (a Array) Slice() []string {
	return a.items
}
