package config

// Flag names shared by the CLI and Overlay.
const (
	FlagFetch           = "fetch-sources"
	FlagExtract         = "extract-sources"
	FlagBuild           = "build-images"
	FlagDelete          = "delete-sources"
	FlagPlot            = "plot-history"
	FlagAll             = "all"
	FlagDownloadDir     = "download-dir"
	FlagBuildDir        = "build-dir"
	FlagBinDir          = "bin-dir"
	FlagSourceMirror    = "source-mirror"
	FlagArchiveFormat   = "archive-format"
	FlagVerifyChecksum  = "verify-checksum"
	FlagMakeArgs        = "make-args"
	FlagArch            = "arch"
	FlagKernelConfig    = "kernel-config"
	FlagFixupTarget     = "config-fixup-target"
	FlagCrossCompile    = "cross-compile"
	FlagSizeTool        = "size-tool"
	FlagCompressedImage = "compressed-image"
	FlagUnitScale       = "plot-unit-scale"
	FlagUnitName        = "plot-unit-name"
	FlagFigSize         = "plot-figsize"
	FlagSavePath        = "plot-savepath"
	FlagLedger          = "ledger"
	FlagPublishURL      = "publish-url"
	FlagLogLevel        = "log-level"
	FlagLogFormat       = "log-format"
)

// Overlay returns base with every field whose flag was explicitly set on the
// command line replaced by the value from flags.
func Overlay(base, flags Config, changed func(name string) bool) Config {
	out := base
	set := func(name string, apply func()) {
		if changed(name) {
			apply()
		}
	}

	set(FlagFetch, func() { out.Stages.Fetch = flags.Stages.Fetch })
	set(FlagExtract, func() { out.Stages.Extract = flags.Stages.Extract })
	set(FlagBuild, func() { out.Stages.Build = flags.Stages.Build })
	set(FlagDelete, func() { out.Stages.Delete = flags.Stages.Delete })
	set(FlagPlot, func() { out.Stages.Plot = flags.Stages.Plot })
	set(FlagAll, func() { out.Stages.All = flags.Stages.All })
	set(FlagDownloadDir, func() { out.Dirs.Download = flags.Dirs.Download })
	set(FlagBuildDir, func() { out.Dirs.Build = flags.Dirs.Build })
	set(FlagBinDir, func() { out.Dirs.Bin = flags.Dirs.Bin })
	set(FlagSourceMirror, func() { out.SourceMirror = flags.SourceMirror })
	set(FlagArchiveFormat, func() { out.ArchiveFormat = flags.ArchiveFormat })
	set(FlagVerifyChecksum, func() { out.VerifyChecksum = flags.VerifyChecksum })
	set(FlagMakeArgs, func() { out.Build.MakeArgs = append([]string(nil), flags.Build.MakeArgs...) })
	set(FlagArch, func() { out.Build.Arch = flags.Build.Arch })
	set(FlagKernelConfig, func() { out.Build.KernelConfig = flags.Build.KernelConfig })
	set(FlagFixupTarget, func() { out.Build.FixupTarget = flags.Build.FixupTarget })
	set(FlagCrossCompile, func() { out.Build.CrossCompile = flags.Build.CrossCompile })
	set(FlagSizeTool, func() { out.Build.SizeTool = flags.Build.SizeTool })
	set(FlagCompressedImage, func() { out.Build.CompressedImage = flags.Build.CompressedImage })
	set(FlagUnitScale, func() { out.Plot.UnitScale = flags.Plot.UnitScale })
	set(FlagUnitName, func() { out.Plot.UnitName = flags.Plot.UnitName })
	set(FlagFigSize, func() { out.Plot.FigSize = flags.Plot.FigSize })
	set(FlagSavePath, func() { out.Plot.SavePath = flags.Plot.SavePath })
	set(FlagLedger, func() { out.Ledger = flags.Ledger })
	set(FlagPublishURL, func() { out.PublishURL = flags.PublishURL })
	set(FlagLogLevel, func() { out.Log.Level = flags.Log.Level })
	set(FlagLogFormat, func() { out.Log.Format = flags.Log.Format })

	if len(flags.Versions) > 0 {
		out.Versions = append([]string(nil), flags.Versions...)
	}
	return out
}
