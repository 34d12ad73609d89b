package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cliflag "github.com/tomasbasham/cli-runtime/flag"
	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/printer"
)

var (
	// Injected at build time using ldflags.
	version = ""
	commit  = ""
)

// ImgupOptions defines the options for the `imgup` command.
type ImgupOptions struct {
	ConfigFlags *ConfigFlags

	iooption.IOStreams
}

// NewImgupOptions provides an initialised ImgupOptions instance.
func NewImgupOptions(streams iooption.IOStreams) *ImgupOptions {
	return &ImgupOptions{
		ConfigFlags: NewConfigFlags(),
		IOStreams:   streams,
	}
}

// NewRootCommand creates the `imgup` command with default arguments.
func NewRootCommand() *cobra.Command {
	options := NewImgupOptions(iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})

	return NewRootCommandWithArgs(options)
}

// NewRootCommandWithArgs creates the `imgup` command and its nested
// children. Run without a subcommand, `imgup` uploads standard input or
// watches a directory.
func NewRootCommandWithArgs(o *ImgupOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "imgup [flags]",
		Version:               versionInfo(),
		DisableFlagsInUseLine: true,
		Short:                 "Upload images to an object-storage bucket",
		Long:                  uploadLong,
		Example:               uploadExample,
		Args:                  cobra.NoArgs,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}

	printerOpts := printer.WarningPrinterOptions{Color: true}
	printer := printer.NewWarningPrinter(o.ErrOut, printerOpts)
	cmd.SetGlobalNormalizationFunc(cliflag.WarnWordSepNormalizeFunc(printer))

	o.ConfigFlags.AddFlags(cmd.PersistentFlags())
	bindUploadFlags(cmd, NewUploadOptions(o.IOStreams, o.ConfigFlags))

	cmd.AddCommand(NewServeCommand(NewServeOptions(o.IOStreams, o.ConfigFlags)))

	// The globlal normalisation function ensures that all flags specified meet
	// the desired format, changing users' input if necessary.
	cmd.SetGlobalNormalizationFunc(cliflag.WordSepNormalizeFunc())

	return cmd
}

func versionInfo() string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}
