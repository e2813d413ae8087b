package postgres

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"
)

var ten = big.NewInt(10)

func numeric(v *big.Int) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{}
	}
	return pgtype.Numeric{Int: new(big.Int).Set(v), Valid: true}
}

// bigInt converts a scanned NUMERIC holding an integral value.
func bigInt(n pgtype.Numeric) (*big.Int, error) {
	if !n.Valid {
		return nil, errors.New("numeric is null")
	}
	if n.NaN || n.InfinityModifier != pgtype.Finite {
		return nil, errors.New("numeric is not a finite number")
	}

	v := new(big.Int)
	if n.Int != nil {
		v.Set(n.Int)
	}
	switch {
	case n.Exp > 0:
		v.Mul(v, new(big.Int).Exp(ten, big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		divisor := new(big.Int).Exp(ten, big.NewInt(int64(-n.Exp)), nil)
		quo, rem := new(big.Int).QuoRem(v, divisor, new(big.Int))
		if rem.Sign() != 0 {
			return nil, fmt.Errorf("numeric %s has a fractional part", n.Int.String())
		}
		v = quo
	}
	return v, nil
}
