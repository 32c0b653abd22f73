package timewarrior

import "os"

// closeAndDeleteUnlessOK closes f and removes its temp file unless ok is
// true by the time the deferred call runs, matching the teacher's
// write-temp-then-rename cleanup idiom.
func closeAndDeleteUnlessOK(f *os.File, ok *bool) {
	if *ok {
		return
	}
	f.Close()
	os.Remove(f.Name())
}

