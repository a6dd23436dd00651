package main

import "os"

func tempDirNoCleanup() (string, error) {
	return os.MkdirTemp("", "sccert-keys-")
}
