package testutil

import "time"

// PollingInterval is the default interval between checks in Poll and
// WaitForState.
const PollingInterval = 10 * time.Millisecond

// FinalizeTimeout bounds how long a test waits for a real-clock recording to
// be stopped, encoded and delivered. GIF encoding of a minimum-size phone
// takes well under a second; the rest is headroom for loaded CI hosts.
const FinalizeTimeout = 10 * time.Second

// FileEventTimeout bounds how long a test waits for an fsnotify event to be
// observed after writing a file.
const FileEventTimeout = 5 * time.Second
