package tools

// NewCatalog builds the full tool registry for a plugin workspace. Agents
// receive role-scoped subsets of it.
func NewCatalog(env Env) Registry {
	return NewRegistry(
		newReadFileTool(env),
		newWriteFileTool(env),
		newListFilesTool(env),
		newDeleteFileTool(env),
		newEnsureDirTool(env),
		newCheckPHPSyntaxTool(env),
		newScanDangerousCodeTool(env),
		newComposeUpTool(env),
		newComposeDownTool(env),
		newActivatePluginTool(env),
		newListPluginsTool(env),
		newPlaygroundTestTool(env),
		newRunPluginCheckTool(env),
		newGeneratePHPUnitConfigTool(env),
		newRunPHPUnitTool(env),
		newCreatePluginZipTool(env),
		newLookupGuidelinesTool(env),
	)
}
