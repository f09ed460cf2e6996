package footprint

import "strings"

var imperialToMetric = map[string]string{
	"0201": "0603",
	"0402": "1005",
	"0603": "1608",
	"0805": "2012",
	"1206": "3216",
	"1210": "3225",
	"1812": "4532",
	"2010": "5025",
	"2512": "6332",
}

var metricToImperial = func() map[string]string {
	out := make(map[string]string, len(imperialToMetric))
	for imperial, metric := range imperialToMetric {
		out[metric] = imperial
	}
	return out
}()

var packageFamilies = []string{
	"LQFP", "TQFP", "QFN", "VQFN", "BGA", "FBGA",
	"SOIC", "SOP", "TSSOP", "MSOP", "SOT",
	"TO", "DIP", "PDIP", "QFP", "PLCC",
}

var packageAliases = map[string][]string{
	"SOT-23":   {"SOT23", "SOT-23-3", "TO-236", "SC-59"},
	"SOT-23-5": {"SOT23-5", "SOT-23-5L", "SC-74A"},
	"SOT-23-6": {"SOT23-6", "SOT-23-6L", "SC-74"},
	"SOT-223":  {"SOT223", "SOT-223-4", "TO-261AA"},
	"SOT-323":  {"SOT323", "SC-70", "SC70"},
	"SOT-363":  {"SOT363", "SC-88", "SC88"},
	"SOIC-8":   {"SOIC8", "SO-8", "SO8", "SOP-8", "SOP8"},
	"SOIC-14":  {"SOIC14", "SO-14", "SO14", "SOP-14", "SOP14"},
	"SOIC-16":  {"SOIC16", "SO-16", "SO16", "SOP-16", "SOP16"},
	"TSSOP-8":  {"TSSOP8", "MSOP-8", "MSOP8"},
	"TSSOP-14": {"TSSOP14"},
	"TSSOP-16": {"TSSOP16"},
	"TSSOP-20": {"TSSOP20"},
	"QFN-16":   {"QFN16", "VQFN-16", "VQFN16"},
	"QFN-20":   {"QFN20", "VQFN-20", "VQFN20"},
	"QFN-24":   {"QFN24", "VQFN-24", "VQFN24"},
	"QFN-32":   {"QFN32", "VQFN-32", "VQFN32"},
	"QFN-48":   {"QFN48", "VQFN-48", "VQFN48"},
	"LQFP-32":  {"LQFP32", "TQFP-32", "TQFP32"},
	"LQFP-48":  {"LQFP48", "TQFP-48", "TQFP48"},
	"LQFP-64":  {"LQFP64", "TQFP-64", "TQFP64"},
	"LQFP-100": {"LQFP100", "TQFP-100", "TQFP100"},
	"LQFP-144": {"LQFP144", "TQFP-144", "TQFP144"},
	"TO-220":   {"TO220", "TO-220-3", "TO220-3"},
	"TO-252":   {"TO252", "DPAK", "D-PAK"},
	"TO-263":   {"TO263", "D2PAK", "D2-PAK", "DDPAK"},
	"BGA-256":  {"BGA256", "FBGA-256"},
	"DIP-8":    {"DIP8", "PDIP-8", "PDIP8"},
	"DIP-14":   {"DIP14", "PDIP-14", "PDIP14"},
	"DIP-16":   {"DIP16", "PDIP-16", "PDIP16"},
}

// aliasLookup maps every upper-cased spelling, canonical names included, to
// its canonical name.
var aliasLookup = func() map[string]string {
	out := map[string]string{}
	for canonical, aliases := range packageAliases {
		out[strings.ToUpper(canonical)] = canonical
		for _, alias := range aliases {
			out[strings.ToUpper(alias)] = canonical
		}
	}
	return out
}()

// Pin counts for packages whose trailing number is not a pin count.
var knownPinCounts = map[string]int{
	"SOT-23":   3,
	"SOT-23-5": 5,
	"SOT-23-6": 6,
	"SOT-223":  4,
	"SOT-323":  3,
	"SOT-363":  6,
	"SOT-89":   3,
	"SOT-143":  4,
	"SOD-123":  2,
	"SOD-323":  2,
	"SOD-523":  2,
	"TO-92":    3,
	"TO-220":   3,
	"TO-247":   3,
	"TO-252":   3,
	"TO-263":   3,
}
