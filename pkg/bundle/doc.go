/*
Package bundle packages a command line with the files it needs and runs it on a
remote host.

A bundle is staged into a fresh private directory, run from there and the
directory is removed afterwards:

	mkdir -m 0700 -p /tmp/stevedore-<uuid>
	upload each file (0755 executables, 0644 otherwise, or an explicit mode)
	cd /tmp/stevedore-<uuid> && <command>
	rm -rf /tmp/stevedore-<uuid>

Removal always happens, including when staging fails, the command fails or the
caller's context is cancelled. If staging fails the command is not run and the
result carries ExitCode StagingFailed with the staging error in Stderr, so
callers handle it exactly like a failed command.

File names are flat: a name containing "/" is rejected. Adding a file under an
existing name replaces it in place. A bundle is consumed by Execute.

Usage:

	b := bundle.New("./install-docker.sh " + version)
	if err := b.AddScript("install-docker.sh", script); err != nil {
		return err
	}
	res, err := handle.RunBundleElevated(ctx, b, node.FaultOnError())
*/
package bundle
