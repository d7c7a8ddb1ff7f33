// Gatekeeper - Request-Layer Security Defense
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/gatekeeper

package password

import "strings"

// commonWords is ordered by how often each entry shows up in leaked
// password dumps, most frequent first. Entries are lowercase.
const commonWords = `
password 123456 123456789 12345678 12345 qwerty 1234567 111111 1234567890
123123 abc123 iloveyou 000000 password1 admin welcome monkey dragon letmein
login master princess qwerty123 solo passw0rd starwars sunshine trustno1
654321 superman football baseball shadow ashley jessica ninja mustang secret
changeme default test guest root toor pass temp server database administrator
michael charlie jordan hunter buster soccer harley batman andrew tigger
thomas robert hockey ranger daniel hannah maggie jennifer joshua pepper
summer winter spring autumn freedom whatever ginger cheese computer amanda
summer123 love hello flower silver orange yellow purple banana chocolate
matrix access internet killer family friends forever angel dolphin anthony
nicole samsung apple google facebook linkedin twitter secure security
system manager office company private network wireless garden heaven
london paris berlin america canada secret123 qazwsx zaq12wsx asdfgh zxcvbn
lovely loveme babygirl sweet butterfly blessed jesus princess1 rainbow
pokemon minecraft fortune diamond golden silver123 mother father sister
brother family1 monday friday weekend holiday coffee pizza cookie cowboy
tiger lion eagle falcon wolf bear shark panther phoenix thunder lightning
money dollar cash rich happy smile music guitar piano rock metal player
gamer legend hero warrior knight wizard magic dream star moon night
`

// maxWordRunes bounds dictionary lookups to the longest entry.
var maxWordRunes, rankedWords = buildRanked(commonWords)

func buildRanked(list string) (int, map[string]int) {
	ranked := make(map[string]int)
	longest := 0
	for _, w := range strings.Fields(list) {
		if _, ok := ranked[w]; ok {
			continue
		}
		ranked[w] = len(ranked) + 1
		if n := len([]rune(w)); n > longest {
			longest = n
		}
	}
	return longest, ranked
}
