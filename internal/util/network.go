package util

import (
	"errors"
	"fmt"
	"net"

	"github.com/projectdiscovery/utils/routing"
)

// any public address works, nothing is sent to it
var outboundDst = net.IPv4(1, 1, 1, 1)

// NetworkCIDR returns the network block containing ip, e.g. 192.168.1.0/24
// for 192.168.1.77 on a /24 interface
func NetworkCIDR(ip net.IP, mask net.IPMask) string {
	size, _ := mask.Size()
	return fmt.Sprintf("%s/%d", ip.Mask(mask).String(), size)
}

// DefaultCIDR returns the cidr of the network behind this machine's default
// route
func DefaultCIDR() (string, error) {
	router, err := routing.New()

	if err != nil {
		return "", err
	}

	return RouteCIDR(router)
}

// RouteCIDR returns the cidr of the interface router picks for outbound
// traffic
func RouteCIDR(router routing.Router) (string, error) {
	iface, _, src, err := router.Route(outboundDst)

	if err != nil {
		return "", err
	}

	if iface == nil || src == nil {
		return "", errors.New("no outbound interface found")
	}

	addrs, err := iface.Addrs()

	if err != nil {
		return "", err
	}

	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)

		if !ok || !ipnet.Contains(src) {
			continue
		}

		return NetworkCIDR(src, ipnet.Mask), nil
	}

	return "", fmt.Errorf("no address on %s contains %s", iface.Name, src)
}
