package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// DrainInputsScript is an ffmpeg stand-in that reads every -i input to EOF
// and exits cleanly.
const DrainInputsScript = `#!/bin/sh
prev=""
for arg in "$@"; do
  if [ "$prev" = "-i" ]; then
    cat "$arg" > /dev/null &
  fi
  prev="$arg"
done
wait
exit 0
`

// ExitImmediatelyScript is an ffmpeg stand-in that dies without opening its
// inputs.
const ExitImmediatelyScript = "#!/bin/sh\necho 'rtmp: connection refused' >&2\nexit 1\n"

// WriteStub writes an executable script named name into dir and returns its
// path.
func WriteStub(t testing.TB, dir, name, script string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}
