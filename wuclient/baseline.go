/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

package wuclient

// The update ids a stock retail desktop reports as already present. The
// service filters its answer against them, so they are sent verbatim.
var installedNonLeafUpdateIDs = []int{
	1, 2, 3, 11, 19, 544, 549, 2359974, 2359977, 5169044, 8788830, 23110993,
	23110994, 54341900, 54343656, 59830006, 59830007, 59830008, 60484010,
	62450018, 62450019, 62450020, 66027979, 66053150, 97657898, 98822896,
	98959022, 98959023, 98959024, 98959025, 98959026, 104433538, 104900364,
	105489019, 117765322, 129905029, 130040031, 132387090, 132393049,
	133399034, 138537048, 140377312, 143747671, 158941041, 158941042,
	158941043, 158941044, 159123858, 159130928, 164836897, 164847386,
	164848327, 164852241, 164852246, 164852252, 164852253,
}

var otherCachedUpdateIDs = []int{
	10, 17, 2359977, 5143990, 5169043, 5169047, 8806526, 9125350, 9154769,
	10809856, 23110995, 23110996, 23110999, 23111000, 23111001, 23111002,
	23111003, 23111004, 24513870, 28880263,
}
