/*
Package node provides the Node Handle, the controller-side representation of one
remote host.

A Handle owns a single remote session (a remote.Transport), serializes every
command sent through it and carries the node's live state:

	┌──────────────────────── Handle ────────────────────────┐
	│  Metadata{Name, Address, Role, Labels}   (immutable)   │
	│                                                         │
	│  status   "run: install-docker.sh", "upload: /etc/x"    │
	│  ready    session confirmed reachable                   │
	│  faulted  terminal; first message kept                  │
	│                                                         │
	│  cmdMu ──► remote.Transport (ssh + sftp)                │
	└─────────────────────────────────────────────────────────┘

# Fault model

Failures are recorded as state on the handle, not thrown. Run returns the
result of a non-zero exit with a nil error so the caller can decide; with
FaultOnError the node is faulted and a *CommandError is returned alongside the
result. Transport failures return *ConnectionError, uploads *TransferError, and
bounded waits *TimeoutError. Once faulted, a node stays faulted; the
orchestrator skips it for the rest of the run.

# Elevation

Elevated commands run through sudo unless the session user is root. With
password authentication the password is written to sudo on stdin (sudo -S);
otherwise sudo must be passwordless (sudo -n). Elevated uploads are staged in
/tmp as the session user and moved into place with install(1).

# Usage

	h, err := node.NewFactory(remote.SSHFactory)(meta, endpoint)
	if err != nil {
		return err
	}
	if err := h.WaitOnline(ctx, rt.Online); err != nil {
		h.Fault(err.Error())
		return err
	}
	if _, err := h.RunElevated(ctx, "apt-get update -q", node.FaultOnError()); err != nil {
		return err
	}
*/
package node
