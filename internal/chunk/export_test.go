package chunk

// CopyExt exports copyExt for testing.
var CopyExt = copyExt

// FirstFrameSync exports firstFrameSync for testing.
var FirstFrameSync = firstFrameSync
