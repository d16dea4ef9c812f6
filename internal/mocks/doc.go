// Package mocks holds gomock doubles for the lock and seckill ports.
package mocks

//go:generate mockgen -destination=locker_mock.go -package=mocks github.com/unkn0wn-root/flashcache/lock Locker
//go:generate mockgen -destination=seckill_mock.go -package=mocks github.com/unkn0wn-root/flashcache/seckill Store,Tx,IDSource,Publisher
