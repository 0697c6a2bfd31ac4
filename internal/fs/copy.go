package fs

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/pagefault/internal/resource"
)

// Copy copies src to dst, creating dst with perm. Reads are throttled by rc
// when it carries an IO limit; a nil rc copies at full speed. The copy is
// synced before Copy returns. On any error dst is removed.
func Copy(ctx context.Context, fsys FileSystem, src, dst string, perm os.FileMode, rc *resource.Controller) (err error) {
	in, err := fsys.OpenFile(src, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = fsys.Remove(dst)
		}
	}()

	var r io.Reader = in
	if rc != nil {
		r = resource.NewRateLimitedReader(ctx, in, rc)
	}

	if _, err = io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err = out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync %s: %w", dst, err)
	}
	return out.Close()
}
