package options

import (
	"github.com/reviewtools/postreview/internal/config"
	"github.com/reviewtools/postreview/internal/printer"
)

type CmdOption func(*CmdOptions) error

type CmdOptions struct {
	ConfigLoader      config.Loader
	ConfigInitializer config.Initializer
	RepositoryPrinter *printer.RepositoryPrinter
}

func defaultOptions() CmdOptions {
	configLoader := &config.DefaultLoader{}
	return CmdOptions{
		ConfigLoader:      configLoader,
		ConfigInitializer: configLoader,
		RepositoryPrinter: printer.NewRepositoryPrinter(),
	}
}

func NewOptions(opt ...CmdOption) (CmdOptions, error) {
	opts := defaultOptions()

	for _, o := range opt {
		if o == nil {
			continue
		}
		if err := o(&opts); err != nil {
			return CmdOptions{}, err
		}
	}
	return opts, nil
}

func WithConfigLoader(l config.Loader) CmdOption {
	return func(o *CmdOptions) error {
		o.ConfigLoader = l
		return nil
	}
}

func WithConfigInitializer(i config.Initializer) CmdOption {
	return func(o *CmdOptions) error {
		o.ConfigInitializer = i
		return nil
	}
}

func WithRepositoryPrinter(p *printer.RepositoryPrinter) CmdOption {
	return func(o *CmdOptions) error {
		o.RepositoryPrinter = p
		return nil
	}
}
