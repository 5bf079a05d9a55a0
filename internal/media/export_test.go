package media

// Export internal functions for testing.

// ApplyBanner exports applyBanner for testing.
func ApplyBanner(out string) Info {
	var info Info
	applyBanner(out, &info)
	return info
}

// ApplyProbeJSON exports applyProbeJSON for testing.
func ApplyProbeJSON(data []byte) (Info, error) {
	var info Info
	err := applyProbeJSON(data, &info)
	return info, err
}

// LastProgressTime exports lastProgressTime for testing.
var LastProgressTime = lastProgressTime
