/*
Package types defines the cluster definition stevedore consumes and the run records
it persists.

A Cluster is the validated object graph behind a cluster.yaml file: the node
inventory (name, address, role, labels, optional SSH override) and the cluster-wide
settings for Docker, Consul, Vault and the reverse proxy. The core reads node
identity, address and role from it to build node handles; everything else is passed
through to the provisioning scripts.

	name: prod
	ssh:
	  user: ubuntu
	  privateKeyPath: ~/.ssh/id_ed25519
	nodes:
	  - name: manager-1
	    address: 10.0.0.11
	    role: manager
	  - name: worker-1
	    address: 10.0.0.21
	    role: worker
	    labels:
	      zone: a
	vault:
	  keyShares: 5
	  keyThreshold: 3
	proxy:
	  routes:
	    - host: app.example.com
	      service: app:8080

Proxy routes and settings are opaque: they are decoded from YAML into JSON blobs and
uploaded to the managers unchanged.

Validation collects every problem (errors.Join) instead of stopping at the first, so
a broken inventory is reported in one pass. Manager counts must be odd so the swarm
Raft store and the Consul servers can form a quorum.

RunRecord and NodeOutcome are the persisted form of an orchestrator result, written
to the local state store after each run.
*/
package types
