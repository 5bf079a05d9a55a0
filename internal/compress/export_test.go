package compress

// Pump exports pump for testing.
var Pump = pump

// Downmix exports downmix for testing.
var Downmix = downmix

// FrameSamples exports frameSamples for testing.
const FrameSamples = frameSamples
