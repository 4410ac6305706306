// Package property substitutes `${name}` references in configuration text.
//
// Values come from a Resolver. Resolvers compose with Chain (first success
// wins) and Recursive (resolved values are expanded again, with cycle
// detection). References nest: in `${a_${b}}` the inner reference is
// resolved first and its value forms part of the outer name. The form
// `${oneof:x,y,}` yields the first candidate that resolves; an empty
// candidate always resolves to the empty string.
package property
