//go:build !linux

package local

func renameNoReplace(oldpath, newpath string) error {
	return renameExclusive(oldpath, newpath)
}

func renameNoReplaceAt(dir int, name, newpath string) error {
	return linkExclusiveAt(dir, name, newpath)
}
