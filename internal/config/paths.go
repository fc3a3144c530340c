package config

// Remote path layout. A single named data volume is mounted at
// RemotePipelineDir in every build/side container; the build workspace
// and the cache/artifact staging area both live as subdirectories of
// that one volume, so the Repository Cloner, the Container Runner, and
// the Cache/Artifact Managers all see the same writable tree without
// needing Docker's newer volume-subpath mount support.
//
// When clone is disabled for a step, the Container Runner instead binds
// the host project directory read-only directly over RemoteWorkspaceDir,
// matching the literal "project_dir -> <remote_workspace_dir>:ro"
// mount.
const (
	// RemotePipelineDir is the shared data volume's mount point in every
	// container that needs it.
	RemotePipelineDir = "/opt/atlassian/pipelines/agent"

	// RemoteWorkspaceDir is the build working tree the Repository Cloner
	// populates and every step script runs from. Matches the literal
	// BUILD_DIR value the environment-variable test scenario
	// asserts.
	RemoteWorkspaceDir = RemotePipelineDir + "/build"

	// RemoteHostSourceDir is where the host project directory is bound
	// read-only for the Repository Cloner to read from; never exposed to
	// the build container itself.
	RemoteHostSourceDir = RemotePipelineDir + "/host-source"

	// RemoteDataDir hosts the cache/artifact staging subdirectories
	// inside the shared volume, kept separate from the build tree itself.
	RemoteDataDir = RemotePipelineDir + "/data"

	// RemoteCachesDir holds cache directories as the Cache Manager stages
	// and extracts them, one subdirectory per cache name.
	RemoteCachesDir = RemoteDataDir + "/caches"
)
