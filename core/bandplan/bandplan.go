package bandplan

import "github.com/ftl/chancap/core"

// Band represents a frequency band.
type Band struct {
	core.FrequencyRange
	Name     BandName
	Segments []Segment
}

// Segment is a part of a band that is used for a certain mode.
type Segment struct {
	core.FrequencyRange
	Mode Mode
}

// Contains indicates if the band contains the given frequency.
func (b *Band) Contains(f core.Frequency) bool {
	return f >= b.From && f <= b.To
}

// Mode returns the mode of the segment that contains the given frequency.
func (b *Band) Mode(f core.Frequency) Mode {
	for _, s := range b.Segments {
		if s.Contains(f) {
			return s.Mode
		}
	}
	return ModeUnknown
}

func (b Band) String() string {
	return string(b.Name)
}

// UnknownBand is the unknown band that contains no frequency.
var UnknownBand = Band{Name: BandUnknown}

// BandName is the name of a frequency band.
type BandName string

// All bands the RTL-SDR can receive without an upconverter.
const (
	BandUnknown BandName = "Unknown"
	Band10m     BandName = "10m"
	Band6m      BandName = "6m"
	Band4m      BandName = "4m"
	Band2m      BandName = "2m"
	Band70cm    BandName = "70cm"
	Band23cm    BandName = "23cm"
)

// Mode type
type Mode string

// All modes.
const (
	ModeUnknown   Mode = ""
	ModeCW        Mode = "CW"
	ModeSSB       Mode = "SSB"
	ModeFM        Mode = "FM"
	ModeDigital   Mode = "Digital"
	ModeBeacon    Mode = "Beacon"
	ModeAll       Mode = "All"
	ModeSatellite Mode = "Satellite"
)

// Bandplan type.
type Bandplan map[BandName]Band

// ByFrequency returns the band for the matching frequency.
func (p Bandplan) ByFrequency(f core.Frequency) Band {
	for _, b := range p {
		if b.Contains(f) {
			return b
		}
	}
	return UnknownBand
}

func band(name BandName, from, to core.Frequency, segments ...Segment) Band {
	return Band{
		Name:           name,
		FrequencyRange: core.FrequencyRange{From: from, To: to},
		Segments:       segments,
	}
}

func segment(from, to core.Frequency, mode Mode) Segment {
	return Segment{
		FrequencyRange: core.FrequencyRange{From: from, To: to},
		Mode:           mode,
	}
}

// IARURegion1 is the bandplan for IARU Region 1
var IARURegion1 = Bandplan{
	Band10m: band(Band10m, 28000000, 29700000,
		segment(28000000, 28070000, ModeCW),
		segment(28070000, 28190000, ModeDigital),
		segment(28190000, 28300000, ModeBeacon),
		segment(28300000, 29100000, ModeSSB),
		segment(29100000, 29510000, ModeAll),
		segment(29510000, 29700000, ModeFM),
	),
	Band6m: band(Band6m, 50000000, 52000000,
		segment(50000000, 50100000, ModeCW),
		segment(50100000, 50500000, ModeSSB),
		segment(50500000, 52000000, ModeAll),
	),
	Band4m: band(Band4m, 70000000, 70500000,
		segment(70000000, 70100000, ModeBeacon),
		segment(70100000, 70250000, ModeSSB),
		segment(70250000, 70500000, ModeFM),
	),
	Band2m: band(Band2m, 144000000, 146000000,
		segment(144000000, 144150000, ModeCW),
		segment(144150000, 144400000, ModeSSB),
		segment(144400000, 144490000, ModeBeacon),
		segment(144500000, 144794000, ModeAll),
		segment(144794000, 144990000, ModeDigital),
		segment(144990000, 145800000, ModeFM),
		segment(145800000, 146000000, ModeSatellite),
	),
	Band70cm: band(Band70cm, 430000000, 440000000,
		segment(432000000, 432150000, ModeCW),
		segment(432150000, 432400000, ModeSSB),
		segment(432400000, 432500000, ModeBeacon),
		segment(432500000, 433600000, ModeAll),
		segment(433600000, 435000000, ModeFM),
		segment(435000000, 438000000, ModeSatellite),
		segment(438000000, 440000000, ModeDigital),
	),
	Band23cm: band(Band23cm, 1240000000, 1300000000,
		segment(1296000000, 1296150000, ModeCW),
		segment(1296150000, 1296800000, ModeSSB),
		segment(1296800000, 1296994000, ModeBeacon),
	),
}
