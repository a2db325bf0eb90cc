package async

import "runtime"

func pause() { runtime.Gosched() }
