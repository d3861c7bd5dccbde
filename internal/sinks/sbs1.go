package sinks

import (
	"fmt"
	"strings"
	"time"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
)

// sbs1MessageType selects the BaseStation MSG type for a StateUpdate, per
// spec.md 4.7's mapping from changed field-class to SBS-1 message type.
func sbs1MessageType(u adsb.StateUpdate) int {
	switch u.Class {
	case adsb.ClassIdentification:
		return 1
	case adsb.ClassPosition:
		if u.OnGround {
			return 2
		}
		return 3
	case adsb.ClassVelocity:
		return 4
	default:
		return 8
	}
}

func sbs1Field(present bool, format func() string) string {
	if !present {
		return ""
	}
	return format()
}

// EncodeSBS1 renders a StateUpdate as one BaseStation/SBS-1 CSV line.
func EncodeSBS1(u adsb.StateUpdate) []byte {
	msgType := sbs1MessageType(u)
	dateGen, timeGen := formatSBS1Timestamp(u.Timestamp)

	var b strings.Builder
	fmt.Fprintf(&b, "MSG,%d,1,1,%s,1,%s,%s,%s,%s,",
		msgType, u.ICAO.String(), dateGen, timeGen, dateGen, timeGen)

	b.WriteString(sbs1Field(u.Callsign != nil, func() string { return strings.TrimSpace(*u.Callsign) }))
	b.WriteByte(',')
	b.WriteString(sbs1Field(u.AltFeet != nil, func() string { return fmt.Sprintf("%d", *u.AltFeet) }))
	b.WriteByte(',')
	b.WriteString(sbs1Field(u.GroundSpeedKt != nil, func() string { return fmt.Sprintf("%.1f", *u.GroundSpeedKt) }))
	b.WriteByte(',')
	b.WriteString(sbs1Field(u.TrackDeg != nil, func() string { return fmt.Sprintf("%.1f", *u.TrackDeg) }))
	b.WriteByte(',')
	b.WriteString(sbs1Field(u.Lat != nil, func() string { return fmt.Sprintf("%.6f", *u.Lat) }))
	b.WriteByte(',')
	b.WriteString(sbs1Field(u.Lon != nil, func() string { return fmt.Sprintf("%.6f", *u.Lon) }))
	b.WriteByte(',')
	b.WriteString(sbs1Field(u.VerticalRateFpm != nil, func() string { return fmt.Sprintf("%d", *u.VerticalRateFpm) }))
	onGround := 0
	if u.OnGround {
		onGround = 1
	}
	fmt.Fprintf(&b, ",,,,,%d\n", onGround)

	return []byte(b.String())
}

func formatSBS1Timestamp(t time.Time) (date, clock string) {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format("2006/01/02"), t.UTC().Format("15:04:05.000")
}
