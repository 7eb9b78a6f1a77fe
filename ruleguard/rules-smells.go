package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Two consecutive guard-ifs returning the same value can be merged.
	//   if a { return err }
	//   if b { return err }
	// => if a || b { return err }
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)

	m.Match(`if $c1 { continue }; if $c2 { continue }`).
		Report(`two consecutive continues; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { continue }`)

	// Lock followed immediately by Unlock usually means a missing defer.
	m.Match(`$mu.Lock(); $mu.Unlock()`).
		Report(`Lock immediately followed by Unlock; did you mean defer $mu.Unlock()?`)

	// fmt.Errorf without %w loses the error chain for errors.Is/As callers.
	m.Match(`fmt.Errorf($fmt, $*_, $err)`).
		Where(m["err"].Type.Implements("error") && !m["fmt"].Text.Matches(`%w`)).
		Report(`wrapping an error without %w breaks errors.Is/errors.As`)
}
