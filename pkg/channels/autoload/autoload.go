// Package autoload registers every built-in channel factory.
package autoload

import (
	_ "polymath/pkg/channels/telegram"
	_ "polymath/pkg/channels/web"
)
